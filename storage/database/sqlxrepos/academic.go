package sqlxrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/attendly/core"
	"github.com/trezcool/attendly/core/academic"
)

var (
	errSessionNameTaken = core.NewFieldError("name", "a session with this name already exists")
	errClassNameTaken   = core.NewFieldError("name", "this class already exists in the session")
)

const (
	sessionColumns    = `id, school_id, name, start_date, end_date, is_active, created_at, updated_at`
	classColumns      = `id, school_id, session_id, name, section, created_at, updated_at`
	assignmentColumns = `id, class_id, person_id, person_kind, is_active, assigned_at, ended_at`

	teacherSelect = `
		SELECT t.id, t.school_id, t.user_id, u.name, COALESCE(u.username, '') AS username,
			COALESCE(u.email, '') AS email, u.is_active, 'coordinator' = ANY(u.roles) AS is_coordinator,
			t.phone, t.subject, COALESCE(ca.class_id::text, '') AS class_id, t.created_at
		FROM teacher t
		JOIN "user" u ON u.id = t.user_id
		LEFT JOIN class_assignment ca ON ca.person_id = t.id AND ca.is_active`

	studentSelect = `
		SELECT s.id, s.school_id, s.user_id, u.name, COALESCE(u.username, '') AS username,
			COALESCE(u.email, '') AS email, u.is_active, s.roll_number, s.guardian_name, s.guardian_phone,
			COALESCE(ca.class_id::text, '') AS class_id, s.created_at
		FROM student s
		JOIN "user" u ON u.id = s.user_id
		LEFT JOIN class_assignment ca ON ca.person_id = s.id AND ca.is_active`
)

type sessionRow struct {
	ID        string    `db:"id"`
	SchoolID  string    `db:"school_id"`
	Name      string    `db:"name"`
	StartDate core.Date `db:"start_date"`
	EndDate   core.Date `db:"end_date"`
	IsActive  bool      `db:"is_active"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (r sessionRow) session() academic.Session {
	return academic.Session(r)
}

type classRow struct {
	ID        string    `db:"id"`
	SchoolID  string    `db:"school_id"`
	SessionID string    `db:"session_id"`
	Name      string    `db:"name"`
	Section   string    `db:"section"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (r classRow) class() academic.Class {
	return academic.Class(r)
}

type assignmentRow struct {
	ID         string    `db:"id"`
	ClassID    string    `db:"class_id"`
	PersonID   string    `db:"person_id"`
	PersonKind string    `db:"person_kind"`
	IsActive   bool      `db:"is_active"`
	AssignedAt time.Time `db:"assigned_at"`
	EndedAt    null.Time `db:"ended_at"`
}

func (r assignmentRow) assignment() academic.ClassAssignment {
	return academic.ClassAssignment{
		ID:         r.ID,
		ClassID:    r.ClassID,
		PersonID:   r.PersonID,
		PersonKind: academic.PersonKind(r.PersonKind),
		IsActive:   r.IsActive,
		AssignedAt: r.AssignedAt,
		EndedAt:    r.EndedAt,
	}
}

type teacherRow struct {
	ID            string    `db:"id"`
	SchoolID      string    `db:"school_id"`
	UserID        string    `db:"user_id"`
	Name          string    `db:"name"`
	Username      string    `db:"username"`
	Email         string    `db:"email"`
	IsActive      bool      `db:"is_active"`
	IsCoordinator bool      `db:"is_coordinator"`
	Phone         string    `db:"phone"`
	Subject       string    `db:"subject"`
	ClassID       string    `db:"class_id"`
	CreatedAt     time.Time `db:"created_at"`
}

func (r teacherRow) teacher() academic.Teacher {
	return academic.Teacher{
		ID:            r.ID,
		SchoolID:      r.SchoolID,
		UserID:        r.UserID,
		Name:          r.Name,
		Username:      r.Username,
		Email:         r.Email,
		IsActive:      r.IsActive,
		IsCoordinator: r.IsCoordinator,
		Phone:         r.Phone,
		Subject:       r.Subject,
		ClassID:       r.ClassID,
		CreatedAt:     r.CreatedAt,
	}
}

type studentRow struct {
	ID            string    `db:"id"`
	SchoolID      string    `db:"school_id"`
	UserID        string    `db:"user_id"`
	Name          string    `db:"name"`
	Username      string    `db:"username"`
	Email         string    `db:"email"`
	IsActive      bool      `db:"is_active"`
	RollNumber    string    `db:"roll_number"`
	GuardianName  string    `db:"guardian_name"`
	GuardianPhone string    `db:"guardian_phone"`
	ClassID       string    `db:"class_id"`
	CreatedAt     time.Time `db:"created_at"`
}

func (r studentRow) student() academic.Student {
	return academic.Student{
		ID:            r.ID,
		SchoolID:      r.SchoolID,
		UserID:        r.UserID,
		Name:          r.Name,
		Username:      r.Username,
		Email:         r.Email,
		IsActive:      r.IsActive,
		RollNumber:    r.RollNumber,
		GuardianName:  r.GuardianName,
		GuardianPhone: r.GuardianPhone,
		ClassID:       r.ClassID,
		CreatedAt:     r.CreatedAt,
	}
}

type academicRepository struct {
	db *sqlx.DB
}

var _ academic.Repository = (*academicRepository)(nil)

func NewAcademicRepository(db *sqlx.DB) academic.Repository {
	return &academicRepository{db: db}
}

// Sessions

func (repo *academicRepository) CreateSession(ctx context.Context, s academic.Session) (academic.Session, error) {
	s.ID = newID()
	_, err := repo.db.ExecContext(ctx, `INSERT INTO academic_session (`+sessionColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		s.ID, s.SchoolID, s.Name, s.StartDate, s.EndDate, s.IsActive, s.CreatedAt, s.UpdatedAt)
	if err != nil {
		if uniqueViolationOn(err, "academic_session_school_id_name_key") {
			return academic.Session{}, errSessionNameTaken
		}
		return academic.Session{}, errors.Wrap(err, "inserting session")
	}
	return s, nil
}

func (repo *academicRepository) QuerySessions(ctx context.Context, schoolID string) ([]academic.Session, error) {
	var rows []sessionRow
	err := repo.db.SelectContext(ctx, &rows,
		`SELECT `+sessionColumns+` FROM academic_session WHERE school_id::text = $1 ORDER BY start_date DESC`, schoolID)
	if err != nil {
		return nil, errors.Wrap(err, "selecting sessions")
	}
	sessions := make([]academic.Session, 0, len(rows))
	for _, r := range rows {
		sessions = append(sessions, r.session())
	}
	return sessions, nil
}

func (repo *academicRepository) GetSessionByID(ctx context.Context, schoolID, id string) (academic.Session, error) {
	var row sessionRow
	err := repo.db.GetContext(ctx, &row,
		`SELECT `+sessionColumns+` FROM academic_session WHERE school_id::text = $1 AND id::text = $2`, schoolID, id)
	if err != nil {
		return academic.Session{}, trapNoRowsErr(err, academic.ErrSessionNotFound, "getting session")
	}
	return row.session(), nil
}

func (repo *academicRepository) GetActiveSession(ctx context.Context, schoolID string) (academic.Session, error) {
	var row sessionRow
	err := repo.db.GetContext(ctx, &row,
		`SELECT `+sessionColumns+` FROM academic_session WHERE school_id::text = $1 AND is_active`, schoolID)
	if err != nil {
		return academic.Session{}, trapNoRowsErr(err, academic.ErrSessionNotFound, "getting active session")
	}
	return row.session(), nil
}

func (repo *academicRepository) UpdateSession(ctx context.Context, s academic.Session) (academic.Session, error) {
	_, err := repo.db.ExecContext(ctx,
		`UPDATE academic_session SET name = $3, start_date = $4, end_date = $5, updated_at = $6 WHERE school_id = $1 AND id = $2`,
		s.SchoolID, s.ID, s.Name, s.StartDate, s.EndDate, s.UpdatedAt)
	if err != nil {
		if uniqueViolationOn(err, "academic_session_school_id_name_key") {
			return academic.Session{}, errSessionNameTaken
		}
		return academic.Session{}, errors.Wrap(err, "updating session")
	}
	return s, nil
}

func (repo *academicRepository) ActivateSession(ctx context.Context, schoolID, id string) (academic.Session, error) {
	var row sessionRow
	now := time.Now().UTC()
	err := inTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`UPDATE academic_session SET is_active = false, updated_at = $3 WHERE school_id::text = $1 AND id::text <> $2 AND is_active`,
			schoolID, id, now); err != nil {
			return errors.Wrap(err, "deactivating sessions")
		}
		err := tx.GetContext(ctx, &row,
			`UPDATE academic_session SET is_active = true, updated_at = $3 WHERE school_id::text = $1 AND id::text = $2 RETURNING `+sessionColumns,
			schoolID, id, now)
		return trapNoRowsErr(err, academic.ErrSessionNotFound, "activating session")
	})
	if err != nil {
		return academic.Session{}, err
	}
	return row.session(), nil
}

func (repo *academicRepository) DeleteSession(ctx context.Context, schoolID, id string) error {
	_, err := repo.db.ExecContext(ctx, `DELETE FROM academic_session WHERE school_id::text = $1 AND id::text = $2`, schoolID, id)
	return errors.Wrap(err, "deleting session")
}

func (repo *academicRepository) CountClasses(ctx context.Context, schoolID, sessionID string) (int, error) {
	var n int
	err := repo.db.GetContext(ctx, &n,
		`SELECT count(*) FROM class WHERE school_id::text = $1 AND session_id::text = $2`, schoolID, sessionID)
	return n, errors.Wrap(err, "counting classes")
}

// Classes

func (repo *academicRepository) CreateClass(ctx context.Context, c academic.Class) (academic.Class, error) {
	c.ID = newID()
	_, err := repo.db.ExecContext(ctx, `INSERT INTO class (`+classColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		c.ID, c.SchoolID, c.SessionID, c.Name, c.Section, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		if uniqueViolationOn(err, "class_session_id_name_section_key") {
			return academic.Class{}, errClassNameTaken
		}
		return academic.Class{}, errors.Wrap(err, "inserting class")
	}
	return c, nil
}

func (repo *academicRepository) QueryClasses(ctx context.Context, schoolID string, filter academic.ClassFilter) ([]academic.Class, error) {
	var w where
	w.add("school_id::text = ?", schoolID)
	if filter.SessionID != "" {
		w.add("session_id::text = ?", filter.SessionID)
	}
	var rows []classRow
	if err := repo.db.SelectContext(ctx, &rows,
		`SELECT `+classColumns+` FROM class`+w.String()+` ORDER BY name, section`, w.args...); err != nil {
		return nil, errors.Wrap(err, "selecting classes")
	}
	classes := make([]academic.Class, 0, len(rows))
	for _, r := range rows {
		classes = append(classes, r.class())
	}
	return classes, nil
}

func (repo *academicRepository) GetClassByID(ctx context.Context, schoolID, id string) (academic.Class, error) {
	var row classRow
	err := repo.db.GetContext(ctx, &row,
		`SELECT `+classColumns+` FROM class WHERE school_id::text = $1 AND id::text = $2`, schoolID, id)
	if err != nil {
		return academic.Class{}, trapNoRowsErr(err, academic.ErrClassNotFound, "getting class")
	}
	return row.class(), nil
}

func (repo *academicRepository) UpdateClass(ctx context.Context, c academic.Class) (academic.Class, error) {
	_, err := repo.db.ExecContext(ctx,
		`UPDATE class SET session_id = $3, name = $4, section = $5, updated_at = $6 WHERE school_id = $1 AND id = $2`,
		c.SchoolID, c.ID, c.SessionID, c.Name, c.Section, c.UpdatedAt)
	if err != nil {
		if uniqueViolationOn(err, "class_session_id_name_section_key") {
			return academic.Class{}, errClassNameTaken
		}
		return academic.Class{}, errors.Wrap(err, "updating class")
	}
	return c, nil
}

func (repo *academicRepository) DeleteClass(ctx context.Context, schoolID, id string) error {
	res, err := repo.db.ExecContext(ctx, `DELETE FROM class WHERE school_id::text = $1 AND id::text = $2`, schoolID, id)
	if err != nil {
		return errors.Wrap(err, "deleting class")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return academic.ErrClassNotFound
	}
	return nil
}

// Teachers

func (repo *academicRepository) CreateTeacher(ctx context.Context, t academic.Teacher) (academic.Teacher, error) {
	t.ID = newID()
	_, err := repo.db.ExecContext(ctx,
		`INSERT INTO teacher (id, school_id, user_id, phone, subject, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		t.ID, t.SchoolID, t.UserID, t.Phone, t.Subject, t.CreatedAt)
	if err != nil {
		return academic.Teacher{}, errors.Wrap(err, "inserting teacher")
	}
	return t, nil
}

func personWhere(alias, schoolID string, filter academic.PersonFilter, searchCols ...string) *where {
	w := new(where)
	w.add(alias+".school_id::text = ?", schoolID)
	if filter.ClassID != "" {
		w.add("ca.class_id::text = ?", filter.ClassID)
	}
	if filter.Search != "" {
		cond := "("
		for i, col := range searchCols {
			if i > 0 {
				cond += " OR "
			}
			cond += col + " ILIKE ?"
		}
		args := make([]interface{}, len(searchCols))
		for i := range args {
			args[i] = likePattern(filter.Search)
		}
		w.add(cond+")", args...)
	}
	return w
}

func (repo *academicRepository) QueryTeachers(ctx context.Context, schoolID string, filter academic.PersonFilter) ([]academic.Teacher, error) {
	w := personWhere("t", schoolID, filter, "u.name", "u.username", "u.email", "t.subject")
	var rows []teacherRow
	if err := repo.db.SelectContext(ctx, &rows, teacherSelect+w.String()+` ORDER BY u.name, t.id`, w.args...); err != nil {
		return nil, errors.Wrap(err, "selecting teachers")
	}
	teachers := make([]academic.Teacher, 0, len(rows))
	for _, r := range rows {
		teachers = append(teachers, r.teacher())
	}
	return teachers, nil
}

func (repo *academicRepository) GetTeacherByID(ctx context.Context, schoolID, id string) (academic.Teacher, error) {
	var row teacherRow
	err := repo.db.GetContext(ctx, &row, teacherSelect+` WHERE t.school_id::text = $1 AND t.id::text = $2`, schoolID, id)
	if err != nil {
		return academic.Teacher{}, trapNoRowsErr(err, academic.ErrTeacherNotFound, "getting teacher")
	}
	return row.teacher(), nil
}

func (repo *academicRepository) DeleteTeacher(ctx context.Context, schoolID, id string) error {
	return repo.deletePerson(ctx, "teacher", schoolID, id, academic.ErrTeacherNotFound)
}

// deletePerson removes a teacher or student profile along with its class history.
func (repo *academicRepository) deletePerson(ctx context.Context, table, schoolID, id string, notFound error) error {
	return inTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE school_id::text = $1 AND id::text = $2`, schoolID, id)
		if err != nil {
			return errors.Wrap(err, "deleting "+table)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return notFound
		}
		_, err = tx.ExecContext(ctx, `DELETE FROM class_assignment WHERE person_id::text = $1`, id)
		return errors.Wrap(err, "deleting class history")
	})
}

// Students

func (repo *academicRepository) CreateStudent(ctx context.Context, s academic.Student) (academic.Student, error) {
	s.ID = newID()
	_, err := repo.db.ExecContext(ctx, `
		INSERT INTO student (id, school_id, user_id, roll_number, guardian_name, guardian_phone, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		s.ID, s.SchoolID, s.UserID, s.RollNumber, s.GuardianName, s.GuardianPhone, s.CreatedAt)
	if err != nil {
		return academic.Student{}, errors.Wrap(err, "inserting student")
	}
	return s, nil
}

func (repo *academicRepository) QueryStudents(ctx context.Context, schoolID string, filter academic.PersonFilter) ([]academic.Student, error) {
	w := personWhere("s", schoolID, filter, "u.name", "u.username", "u.email", "s.roll_number")
	var rows []studentRow
	if err := repo.db.SelectContext(ctx, &rows, studentSelect+w.String()+` ORDER BY u.name, s.id`, w.args...); err != nil {
		return nil, errors.Wrap(err, "selecting students")
	}
	students := make([]academic.Student, 0, len(rows))
	for _, r := range rows {
		students = append(students, r.student())
	}
	return students, nil
}

func (repo *academicRepository) getStudent(ctx context.Context, cond string, args ...interface{}) (academic.Student, error) {
	var row studentRow
	if err := repo.db.GetContext(ctx, &row, studentSelect+` WHERE `+cond, args...); err != nil {
		return academic.Student{}, trapNoRowsErr(err, academic.ErrStudentNotFound, "getting student")
	}
	return row.student(), nil
}

func (repo *academicRepository) GetStudentByID(ctx context.Context, schoolID, id string) (academic.Student, error) {
	return repo.getStudent(ctx, `s.school_id::text = $1 AND s.id::text = $2`, schoolID, id)
}

func (repo *academicRepository) GetStudentByUserID(ctx context.Context, schoolID, userID string) (academic.Student, error) {
	return repo.getStudent(ctx, `s.school_id::text = $1 AND s.user_id::text = $2`, schoolID, userID)
}

func (repo *academicRepository) DeleteStudent(ctx context.Context, schoolID, id string) error {
	return repo.deletePerson(ctx, "student", schoolID, id, academic.ErrStudentNotFound)
}

// Class assignments

func (repo *academicRepository) AssignClass(ctx context.Context, a academic.ClassAssignment) (academic.ClassAssignment, error) {
	a.ID = newID()
	a.IsActive = true
	err := inTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`UPDATE class_assignment SET is_active = false, ended_at = $2 WHERE person_id = $1 AND is_active`,
			a.PersonID, a.AssignedAt); err != nil {
			return errors.Wrap(err, "closing active assignment")
		}
		_, err := tx.ExecContext(ctx, `INSERT INTO class_assignment (`+assignmentColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			a.ID, a.ClassID, a.PersonID, string(a.PersonKind), a.IsActive, a.AssignedAt, a.EndedAt)
		return errors.Wrap(err, "inserting assignment")
	})
	if err != nil {
		return academic.ClassAssignment{}, err
	}
	return a, nil
}

func (repo *academicRepository) ClassHistory(ctx context.Context, personID string) ([]academic.ClassAssignment, error) {
	var rows []assignmentRow
	err := repo.db.SelectContext(ctx, &rows,
		`SELECT `+assignmentColumns+` FROM class_assignment WHERE person_id::text = $1 ORDER BY assigned_at DESC`, personID)
	if err != nil {
		return nil, errors.Wrap(err, "selecting class history")
	}
	history := make([]academic.ClassAssignment, 0, len(rows))
	for _, r := range rows {
		history = append(history, r.assignment())
	}
	return history, nil
}
