package inmemdb

import (
	"context"
	"sort"
	"strings"

	"github.com/volatiletech/null/v8"

	"github.com/trezcool/attendly/core"
	"github.com/trezcool/attendly/core/academic"
	"github.com/trezcool/attendly/core/user"
)

var (
	errSessionNameTaken = core.NewFieldError("name", "a session with this name already exists")
	errClassNameTaken   = core.NewFieldError("name", "this class already exists in the session")
)

type academicRepository struct {
	db *DB
}

var _ academic.Repository = (*academicRepository)(nil)

func NewAcademicRepository(db *DB) academic.Repository {
	return &academicRepository{db: db}
}

// Sessions

func (repo *academicRepository) sessionNameTaken(s academic.Session) bool {
	for _, other := range repo.db.sessions {
		if other.SchoolID == s.SchoolID && other.Name == s.Name && other.ID != s.ID {
			return true
		}
	}
	return false
}

func (repo *academicRepository) CreateSession(_ context.Context, s academic.Session) (academic.Session, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if repo.sessionNameTaken(s) {
		return academic.Session{}, errSessionNameTaken
	}
	s.ID = newID()
	repo.db.sessions[s.ID] = s
	return s, nil
}

func (repo *academicRepository) QuerySessions(_ context.Context, schoolID string) ([]academic.Session, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	sessions := make([]academic.Session, 0)
	for _, s := range repo.db.sessions {
		if s.SchoolID == schoolID {
			sessions = append(sessions, s)
		}
	}
	sort.Slice(sessions, func(i, j int) bool { return sessions[i].StartDate.After(sessions[j].StartDate) })
	return sessions, nil
}

func (repo *academicRepository) GetSessionByID(_ context.Context, schoolID, id string) (academic.Session, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if s, ok := repo.db.sessions[id]; ok && s.SchoolID == schoolID {
		return s, nil
	}
	return academic.Session{}, academic.ErrSessionNotFound
}

func (repo *academicRepository) GetActiveSession(_ context.Context, schoolID string) (academic.Session, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	for _, s := range repo.db.sessions {
		if s.SchoolID == schoolID && s.IsActive {
			return s, nil
		}
	}
	return academic.Session{}, academic.ErrSessionNotFound
}

func (repo *academicRepository) UpdateSession(_ context.Context, s academic.Session) (academic.Session, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	orig, ok := repo.db.sessions[s.ID]
	if !ok || orig.SchoolID != s.SchoolID {
		return academic.Session{}, academic.ErrSessionNotFound
	}
	if repo.sessionNameTaken(s) {
		return academic.Session{}, errSessionNameTaken
	}
	s.IsActive = orig.IsActive
	repo.db.sessions[s.ID] = s
	return s, nil
}

func (repo *academicRepository) ActivateSession(_ context.Context, schoolID, id string) (academic.Session, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	target, ok := repo.db.sessions[id]
	if !ok || target.SchoolID != schoolID {
		return academic.Session{}, academic.ErrSessionNotFound
	}
	for sid, s := range repo.db.sessions {
		if s.SchoolID == schoolID && s.IsActive && sid != id {
			s.IsActive = false
			repo.db.sessions[sid] = s
		}
	}
	target.IsActive = true
	repo.db.sessions[id] = target
	return target, nil
}

func (repo *academicRepository) DeleteSession(_ context.Context, schoolID, id string) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if s, ok := repo.db.sessions[id]; ok && s.SchoolID == schoolID {
		delete(repo.db.sessions, id)
	}
	return nil
}

func (repo *academicRepository) CountClasses(_ context.Context, schoolID, sessionID string) (int, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	var n int
	for _, c := range repo.db.classes {
		if c.SchoolID == schoolID && c.SessionID == sessionID {
			n++
		}
	}
	return n, nil
}

// Classes

func (repo *academicRepository) classTaken(c academic.Class) bool {
	for _, other := range repo.db.classes {
		if other.SessionID == c.SessionID && other.Name == c.Name && other.Section == c.Section && other.ID != c.ID {
			return true
		}
	}
	return false
}

func (repo *academicRepository) CreateClass(_ context.Context, c academic.Class) (academic.Class, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if repo.classTaken(c) {
		return academic.Class{}, errClassNameTaken
	}
	c.ID = newID()
	repo.db.classes[c.ID] = c
	return c, nil
}

func (repo *academicRepository) QueryClasses(_ context.Context, schoolID string, filter academic.ClassFilter) ([]academic.Class, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	classes := make([]academic.Class, 0)
	for _, c := range repo.db.classes {
		if c.SchoolID == schoolID && (filter.SessionID == "" || c.SessionID == filter.SessionID) {
			classes = append(classes, c)
		}
	}
	sort.Slice(classes, func(i, j int) bool { return classes[i].Label() < classes[j].Label() })
	return classes, nil
}

func (repo *academicRepository) GetClassByID(_ context.Context, schoolID, id string) (academic.Class, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if c, ok := repo.db.classes[id]; ok && c.SchoolID == schoolID {
		return c, nil
	}
	return academic.Class{}, academic.ErrClassNotFound
}

func (repo *academicRepository) UpdateClass(_ context.Context, c academic.Class) (academic.Class, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if orig, ok := repo.db.classes[c.ID]; !ok || orig.SchoolID != c.SchoolID {
		return academic.Class{}, academic.ErrClassNotFound
	}
	if repo.classTaken(c) {
		return academic.Class{}, errClassNameTaken
	}
	repo.db.classes[c.ID] = c
	return c, nil
}

// DeleteClass cascades to the class assignments & attendance records.
func (repo *academicRepository) DeleteClass(_ context.Context, schoolID, id string) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if c, ok := repo.db.classes[id]; !ok || c.SchoolID != schoolID {
		return academic.ErrClassNotFound
	}
	delete(repo.db.classes, id)
	kept := repo.db.assignments[:0]
	for _, a := range repo.db.assignments {
		if a.ClassID != id {
			kept = append(kept, a)
		}
	}
	repo.db.assignments = kept
	for k := range repo.db.records {
		if k.classID == id {
			delete(repo.db.records, k)
		}
	}
	return nil
}

// Teachers & students

func (db *DB) activeClassOf(personID string) string {
	for _, a := range db.assignments {
		if a.PersonID == personID && a.IsActive {
			return a.ClassID
		}
	}
	return ""
}

func (db *DB) teacherView(t academic.Teacher) academic.Teacher {
	usr := db.users[t.UserID]
	t.Name = usr.Name
	t.Username = usr.Username
	t.Email = usr.Email
	t.IsActive = usr.IsActive
	t.IsCoordinator = usr.HasRole(user.RoleCoordinator)
	t.ClassID = db.activeClassOf(t.ID)
	t.History = nil
	return t
}

func (db *DB) studentView(s academic.Student) academic.Student {
	usr := db.users[s.UserID]
	s.Name = usr.Name
	s.Username = usr.Username
	s.Email = usr.Email
	s.IsActive = usr.IsActive
	s.ClassID = db.activeClassOf(s.ID)
	s.History = nil
	return s
}

func matchesSearch(search string, fields ...string) bool {
	if search == "" {
		return true
	}
	search = strings.ToLower(search)
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), search) {
			return true
		}
	}
	return false
}

func (repo *academicRepository) CreateTeacher(_ context.Context, t academic.Teacher) (academic.Teacher, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	t.ID = newID()
	repo.db.teachers[t.ID] = t
	return t, nil
}

func (repo *academicRepository) QueryTeachers(_ context.Context, schoolID string, filter academic.PersonFilter) ([]academic.Teacher, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	teachers := make([]academic.Teacher, 0)
	for _, t := range repo.db.teachers {
		if t.SchoolID != schoolID {
			continue
		}
		t = repo.db.teacherView(t)
		if filter.ClassID != "" && t.ClassID != filter.ClassID {
			continue
		}
		if matchesSearch(filter.Search, t.Name, t.Username, t.Email, t.Subject) {
			teachers = append(teachers, t)
		}
	}
	sort.Slice(teachers, func(i, j int) bool {
		if teachers[i].Name != teachers[j].Name {
			return teachers[i].Name < teachers[j].Name
		}
		return teachers[i].ID < teachers[j].ID
	})
	return teachers, nil
}

func (repo *academicRepository) GetTeacherByID(_ context.Context, schoolID, id string) (academic.Teacher, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if t, ok := repo.db.teachers[id]; ok && t.SchoolID == schoolID {
		return repo.db.teacherView(t), nil
	}
	return academic.Teacher{}, academic.ErrTeacherNotFound
}

func (repo *academicRepository) DeleteTeacher(_ context.Context, schoolID, id string) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if t, ok := repo.db.teachers[id]; !ok || t.SchoolID != schoolID {
		return academic.ErrTeacherNotFound
	}
	delete(repo.db.teachers, id)
	repo.db.dropHistoryOf(id)
	return nil
}

func (repo *academicRepository) CreateStudent(_ context.Context, s academic.Student) (academic.Student, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	s.ID = newID()
	repo.db.students[s.ID] = s
	return s, nil
}

func (repo *academicRepository) QueryStudents(_ context.Context, schoolID string, filter academic.PersonFilter) ([]academic.Student, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	students := make([]academic.Student, 0)
	for _, s := range repo.db.students {
		if s.SchoolID != schoolID {
			continue
		}
		s = repo.db.studentView(s)
		if filter.ClassID != "" && s.ClassID != filter.ClassID {
			continue
		}
		if matchesSearch(filter.Search, s.Name, s.Username, s.Email, s.RollNumber) {
			students = append(students, s)
		}
	}
	sort.Slice(students, func(i, j int) bool {
		if students[i].Name != students[j].Name {
			return students[i].Name < students[j].Name
		}
		return students[i].ID < students[j].ID
	})
	return students, nil
}

func (repo *academicRepository) GetStudentByID(_ context.Context, schoolID, id string) (academic.Student, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if s, ok := repo.db.students[id]; ok && s.SchoolID == schoolID {
		return repo.db.studentView(s), nil
	}
	return academic.Student{}, academic.ErrStudentNotFound
}

func (repo *academicRepository) GetStudentByUserID(_ context.Context, schoolID, userID string) (academic.Student, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	for _, s := range repo.db.students {
		if s.SchoolID == schoolID && s.UserID == userID {
			return repo.db.studentView(s), nil
		}
	}
	return academic.Student{}, academic.ErrStudentNotFound
}

func (repo *academicRepository) DeleteStudent(_ context.Context, schoolID, id string) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if s, ok := repo.db.students[id]; !ok || s.SchoolID != schoolID {
		return academic.ErrStudentNotFound
	}
	delete(repo.db.students, id)
	repo.db.dropHistoryOf(id)
	for k := range repo.db.records {
		if k.studentID == id {
			delete(repo.db.records, k)
		}
	}
	return nil
}

// Class assignments

func (repo *academicRepository) AssignClass(_ context.Context, a academic.ClassAssignment) (academic.ClassAssignment, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	for i, prev := range repo.db.assignments {
		if prev.PersonID == a.PersonID && prev.IsActive {
			repo.db.assignments[i].IsActive = false
			repo.db.assignments[i].EndedAt = null.TimeFrom(a.AssignedAt)
		}
	}
	a.ID = newID()
	a.IsActive = true
	repo.db.assignments = append(repo.db.assignments, a)
	return a, nil
}

func (repo *academicRepository) ClassHistory(_ context.Context, personID string) ([]academic.ClassAssignment, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	history := make([]academic.ClassAssignment, 0)
	for i := len(repo.db.assignments) - 1; i >= 0; i-- {
		if a := repo.db.assignments[i]; a.PersonID == personID {
			history = append(history, a)
		}
	}
	return history, nil
}

func (db *DB) dropHistoryOf(personID string) {
	kept := db.assignments[:0]
	for _, a := range db.assignments {
		if a.PersonID != personID {
			kept = append(kept, a)
		}
	}
	db.assignments = kept
}
