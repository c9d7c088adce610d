package academic

import (
	"context"
	"net/mail"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/attendly/core"
	"github.com/trezcool/attendly/core/school"
	"github.com/trezcool/attendly/core/user"
)

var (
	ErrSessionNotFound = core.NotFoundError{Entity: "session"}
	ErrClassNotFound   = core.NotFoundError{Entity: "class"}
	ErrTeacherNotFound = core.NotFoundError{Entity: "teacher"}
	ErrStudentNotFound = core.NotFoundError{Entity: "student"}

	ErrSessionInUse     = core.ConflictError{Message: "session still has classes"}
	ErrInvalidDateRange = errors.New("end date must be after start date")
)

type (
	Repository interface {
		CreateSession(ctx context.Context, s Session) (Session, error)
		// QuerySessions returns the sessions of the school, latest first.
		QuerySessions(ctx context.Context, schoolID string) ([]Session, error)
		GetSessionByID(ctx context.Context, schoolID, id string) (Session, error)
		GetActiveSession(ctx context.Context, schoolID string) (Session, error)
		UpdateSession(ctx context.Context, s Session) (Session, error)
		// ActivateSession atomically deactivates every other session of the school.
		ActivateSession(ctx context.Context, schoolID, id string) (Session, error)
		DeleteSession(ctx context.Context, schoolID, id string) error
		CountClasses(ctx context.Context, schoolID, sessionID string) (int, error)

		CreateClass(ctx context.Context, c Class) (Class, error)
		QueryClasses(ctx context.Context, schoolID string, filter ClassFilter) ([]Class, error)
		GetClassByID(ctx context.Context, schoolID, id string) (Class, error)
		UpdateClass(ctx context.Context, c Class) (Class, error)
		DeleteClass(ctx context.Context, schoolID, id string) error

		CreateTeacher(ctx context.Context, t Teacher) (Teacher, error)
		// QueryTeachers filters on the active class when filter.ClassID is set.
		QueryTeachers(ctx context.Context, schoolID string, filter PersonFilter) ([]Teacher, error)
		GetTeacherByID(ctx context.Context, schoolID, id string) (Teacher, error)
		DeleteTeacher(ctx context.Context, schoolID, id string) error

		CreateStudent(ctx context.Context, s Student) (Student, error)
		QueryStudents(ctx context.Context, schoolID string, filter PersonFilter) ([]Student, error)
		GetStudentByID(ctx context.Context, schoolID, id string) (Student, error)
		GetStudentByUserID(ctx context.Context, schoolID, userID string) (Student, error)
		DeleteStudent(ctx context.Context, schoolID, id string) error

		// AssignClass closes the active assignment of the person (if any) and inserts a.
		AssignClass(ctx context.Context, a ClassAssignment) (ClassAssignment, error)
		// ClassHistory lists the assignments of a person, latest first.
		ClassHistory(ctx context.Context, personID string) ([]ClassAssignment, error)
	}

	Service interface {
		CreateSession(ctx context.Context, schoolID string, data SessionData) (Session, error)
		ListSessions(ctx context.Context, schoolID string) ([]Session, error)
		GetSession(ctx context.Context, schoolID, id string) (Session, error)
		ActiveSession(ctx context.Context, schoolID string) (Session, error)
		UpdateSession(ctx context.Context, s Session, data SessionData) (Session, error)
		ActivateSession(ctx context.Context, schoolID, id string) (Session, error)
		DeleteSession(ctx context.Context, schoolID, id string) error

		CreateClass(ctx context.Context, schoolID string, data ClassData) (Class, error)
		ListClasses(ctx context.Context, schoolID string, filter ClassFilter) ([]Class, error)
		GetClass(ctx context.Context, schoolID, id string) (Class, error)
		UpdateClass(ctx context.Context, c Class, data ClassData) (Class, error)
		DeleteClass(ctx context.Context, schoolID, id string) error

		CreateTeacher(ctx context.Context, sch school.School, data NewTeacher) (Teacher, error)
		ListTeachers(ctx context.Context, schoolID string, filter PersonFilter) ([]Teacher, error)
		GetTeacher(ctx context.Context, schoolID, id string) (Teacher, error)
		AssignTeacher(ctx context.Context, schoolID, teacherID, classID string) (Teacher, error)
		ActiveTeacherOf(ctx context.Context, schoolID, classID string) (Teacher, error)
		DeleteTeacher(ctx context.Context, schoolID, id string) error

		CreateStudent(ctx context.Context, sch school.School, data NewStudent) (Student, error)
		ImportStudents(ctx context.Context, sch school.School, classID string, csvData []byte) (ImportResult, error)
		ListStudents(ctx context.Context, schoolID string, filter PersonFilter) ([]Student, error)
		GetStudent(ctx context.Context, schoolID, id string) (Student, error)
		StudentOfUser(ctx context.Context, schoolID, userID string) (Student, error)
		EnrollStudent(ctx context.Context, schoolID, studentID, classID string) (Student, error)
		DeleteStudent(ctx context.Context, schoolID, id string) error
	}

	service struct {
		repo       Repository
		usrSvc     user.Service
		mailSvc    core.EmailService
		logger     core.Logger
		validate   *validator.Validate
		translator ut.Translator
	}
)

var _ Service = (*service)(nil)

func NewService(
	repo Repository,
	usrSvc user.Service,
	mailSvc core.EmailService,
	logger core.Logger,
	validate *validator.Validate,
	translator ut.Translator,
) Service {
	return &service{
		repo:       repo,
		usrSvc:     usrSvc,
		mailSvc:    mailSvc,
		logger:     logger,
		validate:   validate,
		translator: translator,
	}
}

// Sessions

func (svc *service) checkSession(data *SessionData) error {
	data.Name = core.CleanString(data.Name)
	if err := svc.validate.Struct(data); err != nil {
		return err
	}
	switch {
	case data.StartDate.IsZero():
		return core.NewFieldError("start_date", "start date is required")
	case data.EndDate.IsZero():
		return core.NewFieldError("end_date", "end date is required")
	case !data.EndDate.After(data.StartDate):
		return core.NewValidationError(ErrInvalidDateRange, core.FieldError{Field: "end_date", Error: ErrInvalidDateRange.Error()})
	}
	return nil
}

func (svc *service) CreateSession(ctx context.Context, schoolID string, data SessionData) (Session, error) {
	if err := svc.checkSession(&data); err != nil {
		return Session{}, err
	}

	// the first session of a school starts active
	_, err := svc.repo.GetActiveSession(ctx, schoolID)
	if err != nil && !core.IsNotFound(err) {
		return Session{}, errors.Wrap(err, "finding active session")
	}

	now := time.Now().UTC()
	return svc.repo.CreateSession(ctx, Session{
		SchoolID:  schoolID,
		Name:      data.Name,
		StartDate: data.StartDate,
		EndDate:   data.EndDate,
		IsActive:  core.IsNotFound(err),
		CreatedAt: now,
		UpdatedAt: now,
	})
}

func (svc *service) ListSessions(ctx context.Context, schoolID string) ([]Session, error) {
	return svc.repo.QuerySessions(ctx, schoolID)
}

func (svc *service) GetSession(ctx context.Context, schoolID, id string) (Session, error) {
	return svc.repo.GetSessionByID(ctx, schoolID, id)
}

func (svc *service) ActiveSession(ctx context.Context, schoolID string) (Session, error) {
	return svc.repo.GetActiveSession(ctx, schoolID)
}

func (svc *service) UpdateSession(ctx context.Context, s Session, data SessionData) (Session, error) {
	if err := svc.checkSession(&data); err != nil {
		return Session{}, err
	}
	s.Name = data.Name
	s.StartDate = data.StartDate
	s.EndDate = data.EndDate
	s.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateSession(ctx, s)
}

func (svc *service) ActivateSession(ctx context.Context, schoolID, id string) (Session, error) {
	if _, err := svc.repo.GetSessionByID(ctx, schoolID, id); err != nil {
		return Session{}, err
	}
	return svc.repo.ActivateSession(ctx, schoolID, id)
}

func (svc *service) DeleteSession(ctx context.Context, schoolID, id string) error {
	if _, err := svc.repo.GetSessionByID(ctx, schoolID, id); err != nil {
		return err
	}
	n, err := svc.repo.CountClasses(ctx, schoolID, id)
	if err != nil {
		return errors.Wrap(err, "counting session classes")
	}
	if n > 0 {
		return ErrSessionInUse
	}
	return svc.repo.DeleteSession(ctx, schoolID, id)
}

// Classes

func (svc *service) checkClass(ctx context.Context, schoolID string, data *ClassData) error {
	data.Name = core.CleanString(data.Name)
	data.Section = core.CleanString(data.Section)
	if err := svc.validate.Struct(data); err != nil {
		return err
	}
	if _, err := svc.repo.GetSessionByID(ctx, schoolID, data.SessionID); err != nil {
		if core.IsNotFound(err) {
			return core.NewFieldError("session_id", "unknown session")
		}
		return errors.Wrap(err, "finding session")
	}
	return nil
}

func (svc *service) CreateClass(ctx context.Context, schoolID string, data ClassData) (Class, error) {
	if err := svc.checkClass(ctx, schoolID, &data); err != nil {
		return Class{}, err
	}
	now := time.Now().UTC()
	return svc.repo.CreateClass(ctx, Class{
		SchoolID:  schoolID,
		SessionID: data.SessionID,
		Name:      data.Name,
		Section:   data.Section,
		CreatedAt: now,
		UpdatedAt: now,
	})
}

func (svc *service) ListClasses(ctx context.Context, schoolID string, filter ClassFilter) ([]Class, error) {
	return svc.repo.QueryClasses(ctx, schoolID, filter)
}

func (svc *service) GetClass(ctx context.Context, schoolID, id string) (Class, error) {
	return svc.repo.GetClassByID(ctx, schoolID, id)
}

func (svc *service) UpdateClass(ctx context.Context, c Class, data ClassData) (Class, error) {
	if err := svc.checkClass(ctx, c.SchoolID, &data); err != nil {
		return Class{}, err
	}
	c.SessionID = data.SessionID
	c.Name = data.Name
	c.Section = data.Section
	c.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateClass(ctx, c)
}

func (svc *service) DeleteClass(ctx context.Context, schoolID, id string) error {
	return svc.repo.DeleteClass(ctx, schoolID, id)
}

func (svc *service) classOrFieldError(ctx context.Context, schoolID, classID string) error {
	if _, err := svc.repo.GetClassByID(ctx, schoolID, classID); err != nil {
		if core.IsNotFound(err) {
			return core.NewFieldError("class_id", "unknown class")
		}
		return errors.Wrap(err, "finding class")
	}
	return nil
}

// Teachers

func (svc *service) CreateTeacher(ctx context.Context, sch school.School, data NewTeacher) (Teacher, error) {
	roles := []string{user.RoleTeacher}
	if data.IsCoordinator {
		roles = append(roles, user.RoleCoordinator)
	}
	nu := user.NewUser{
		SchoolID:        sch.ID,
		Name:            data.Name,
		Username:        data.Username,
		Email:           data.Email,
		Password:        data.Password,
		PasswordConfirm: data.PasswordConfirm,
		Roles:           roles,
	}
	if err := nu.Validate(ctx, svc.validate, svc.usrSvc); err != nil {
		return Teacher{}, err
	}
	data.Phone = core.CleanString(data.Phone)
	data.Subject = core.CleanString(data.Subject)
	if err := svc.validate.Struct(data); err != nil {
		return Teacher{}, err
	}
	if data.ClassID != "" {
		if err := svc.classOrFieldError(ctx, sch.ID, data.ClassID); err != nil {
			return Teacher{}, err
		}
	}

	usr, err := svc.usrSvc.Create(ctx, nu)
	if err != nil {
		return Teacher{}, errors.Wrap(err, "creating teacher account")
	}
	t, err := svc.repo.CreateTeacher(ctx, Teacher{
		SchoolID:  sch.ID,
		UserID:    usr.ID,
		Phone:     data.Phone,
		Subject:   data.Subject,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		svc.dropAccount(ctx, usr)
		return Teacher{}, errors.Wrap(err, "creating teacher profile")
	}
	if data.ClassID != "" {
		if t, err = svc.AssignTeacher(ctx, sch.ID, t.ID, data.ClassID); err != nil {
			return Teacher{}, err
		}
	}

	svc.sendAccountMail(sch, usr, user.RoleTeacher)
	return svc.repo.GetTeacherByID(ctx, sch.ID, t.ID)
}

func (svc *service) ListTeachers(ctx context.Context, schoolID string, filter PersonFilter) ([]Teacher, error) {
	filter.Search = core.CleanString(filter.Search, true /* lower */)
	return svc.repo.QueryTeachers(ctx, schoolID, filter)
}

func (svc *service) GetTeacher(ctx context.Context, schoolID, id string) (Teacher, error) {
	t, err := svc.repo.GetTeacherByID(ctx, schoolID, id)
	if err != nil {
		return Teacher{}, err
	}
	if t.History, err = svc.repo.ClassHistory(ctx, t.ID); err != nil {
		return Teacher{}, errors.Wrap(err, "listing class history")
	}
	return t, nil
}

func (svc *service) AssignTeacher(ctx context.Context, schoolID, teacherID, classID string) (Teacher, error) {
	t, err := svc.repo.GetTeacherByID(ctx, schoolID, teacherID)
	if err != nil {
		return Teacher{}, err
	}
	if err := svc.classOrFieldError(ctx, schoolID, classID); err != nil {
		return Teacher{}, err
	}
	if t.ClassID != classID {
		if _, err := svc.repo.AssignClass(ctx, ClassAssignment{
			ClassID:    classID,
			PersonID:   t.ID,
			PersonKind: KindTeacher,
			IsActive:   true,
			AssignedAt: time.Now().UTC(),
		}); err != nil {
			return Teacher{}, errors.Wrap(err, "assigning class")
		}
	}
	return svc.GetTeacher(ctx, schoolID, teacherID)
}

func (svc *service) ActiveTeacherOf(ctx context.Context, schoolID, classID string) (Teacher, error) {
	teachers, err := svc.repo.QueryTeachers(ctx, schoolID, PersonFilter{ClassID: classID})
	if err != nil {
		return Teacher{}, err
	}
	if len(teachers) == 0 {
		return Teacher{}, ErrTeacherNotFound
	}
	return teachers[0], nil
}

func (svc *service) DeleteTeacher(ctx context.Context, schoolID, id string) error {
	t, err := svc.repo.GetTeacherByID(ctx, schoolID, id)
	if err != nil {
		return err
	}
	if err := svc.repo.DeleteTeacher(ctx, schoolID, id); err != nil {
		return errors.Wrap(err, "deleting teacher")
	}
	if _, err := svc.usrSvc.Delete(ctx, schoolID, t.UserID); err != nil {
		return errors.Wrap(err, "deleting teacher account")
	}
	return nil
}

// Students

func (svc *service) CreateStudent(ctx context.Context, sch school.School, data NewStudent) (Student, error) {
	nu := user.NewUser{
		SchoolID:        sch.ID,
		Name:            data.Name,
		Username:        data.Username,
		Email:           data.Email,
		Password:        data.Password,
		PasswordConfirm: data.PasswordConfirm,
		Roles:           []string{user.RoleStudent},
	}
	if err := nu.Validate(ctx, svc.validate, svc.usrSvc); err != nil {
		return Student{}, err
	}
	data.RollNumber = core.CleanString(data.RollNumber)
	data.GuardianName = core.CleanString(data.GuardianName)
	data.GuardianPhone = core.CleanString(data.GuardianPhone)
	if err := svc.validate.Struct(data); err != nil {
		return Student{}, err
	}
	if data.ClassID != "" {
		if err := svc.classOrFieldError(ctx, sch.ID, data.ClassID); err != nil {
			return Student{}, err
		}
	}

	st, err := svc.createStudent(ctx, sch, nu, data)
	if err != nil {
		return Student{}, err
	}
	return svc.repo.GetStudentByID(ctx, sch.ID, st.ID)
}

// createStudent persists an already validated student & its account.
func (svc *service) createStudent(ctx context.Context, sch school.School, nu user.NewUser, data NewStudent) (Student, error) {
	usr, err := svc.usrSvc.Create(ctx, nu)
	if err != nil {
		return Student{}, errors.Wrap(err, "creating student account")
	}
	st, err := svc.repo.CreateStudent(ctx, Student{
		SchoolID:      sch.ID,
		UserID:        usr.ID,
		RollNumber:    data.RollNumber,
		GuardianName:  data.GuardianName,
		GuardianPhone: data.GuardianPhone,
		CreatedAt:     time.Now().UTC(),
	})
	if err != nil {
		svc.dropAccount(ctx, usr)
		return Student{}, errors.Wrap(err, "creating student profile")
	}
	if data.ClassID != "" {
		if _, err = svc.repo.AssignClass(ctx, ClassAssignment{
			ClassID:    data.ClassID,
			PersonID:   st.ID,
			PersonKind: KindStudent,
			IsActive:   true,
			AssignedAt: time.Now().UTC(),
		}); err != nil {
			return Student{}, errors.Wrap(err, "enrolling student")
		}
		st.ClassID = data.ClassID
	}
	svc.sendAccountMail(sch, usr, user.RoleStudent)
	return st, nil
}

func (svc *service) ListStudents(ctx context.Context, schoolID string, filter PersonFilter) ([]Student, error) {
	filter.Search = core.CleanString(filter.Search, true /* lower */)
	return svc.repo.QueryStudents(ctx, schoolID, filter)
}

func (svc *service) GetStudent(ctx context.Context, schoolID, id string) (Student, error) {
	st, err := svc.repo.GetStudentByID(ctx, schoolID, id)
	if err != nil {
		return Student{}, err
	}
	if st.History, err = svc.repo.ClassHistory(ctx, st.ID); err != nil {
		return Student{}, errors.Wrap(err, "listing class history")
	}
	return st, nil
}

func (svc *service) StudentOfUser(ctx context.Context, schoolID, userID string) (Student, error) {
	return svc.repo.GetStudentByUserID(ctx, schoolID, userID)
}

func (svc *service) EnrollStudent(ctx context.Context, schoolID, studentID, classID string) (Student, error) {
	st, err := svc.repo.GetStudentByID(ctx, schoolID, studentID)
	if err != nil {
		return Student{}, err
	}
	if err := svc.classOrFieldError(ctx, schoolID, classID); err != nil {
		return Student{}, err
	}
	if st.ClassID != classID {
		if _, err := svc.repo.AssignClass(ctx, ClassAssignment{
			ClassID:    classID,
			PersonID:   st.ID,
			PersonKind: KindStudent,
			IsActive:   true,
			AssignedAt: time.Now().UTC(),
		}); err != nil {
			return Student{}, errors.Wrap(err, "enrolling student")
		}
	}
	return svc.GetStudent(ctx, schoolID, studentID)
}

func (svc *service) DeleteStudent(ctx context.Context, schoolID, id string) error {
	st, err := svc.repo.GetStudentByID(ctx, schoolID, id)
	if err != nil {
		return err
	}
	if err := svc.repo.DeleteStudent(ctx, schoolID, id); err != nil {
		return errors.Wrap(err, "deleting student")
	}
	if _, err := svc.usrSvc.Delete(ctx, schoolID, st.UserID); err != nil {
		return errors.Wrap(err, "deleting student account")
	}
	return nil
}

func (svc *service) dropAccount(ctx context.Context, usr user.User) {
	if _, err := svc.usrSvc.Delete(ctx, usr.SchoolID, usr.ID); err != nil {
		svc.logger.Error("dropping orphan account "+usr.ID+": "+err.Error(), err)
	}
}

type accountData struct {
	Name       string
	SchoolName string
	SchoolCode string
	Role       string
	Username   string
}

func (svc *service) sendAccountMail(sch school.School, usr user.User, role string) {
	if usr.Email == "" {
		return
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: usr.Name, Address: usr.Email}},
		Subject:      "Your " + sch.Name + " account",
		School:       sch.Name,
		TemplateName: "account_created",
		TemplateData: accountData{
			Name:       usr.Name,
			SchoolName: sch.Name,
			SchoolCode: sch.Code,
			Role:       role,
			Username:   usr.Username,
		},
	})
}
