// Package testutil wires the services on the in-memory store for tests.
package testutil

import (
	"context"
	"testing"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/attendly/apps/shared"
	"github.com/trezcool/attendly/core"
	"github.com/trezcool/attendly/core/academic"
	"github.com/trezcool/attendly/core/attendance"
	"github.com/trezcool/attendly/core/audit"
	"github.com/trezcool/attendly/core/dbadmin"
	"github.com/trezcool/attendly/core/holiday"
	"github.com/trezcool/attendly/core/school"
	"github.com/trezcool/attendly/core/user"
	emailsvc "github.com/trezcool/attendly/services/email"
	logsvc "github.com/trezcool/attendly/services/logger"
	inmemdb "github.com/trezcool/attendly/storage/database/inmem"
)

// Password satisfies the password policy; every fixture user gets it.
const Password = "Tr0ub4dor&3x"

type Env struct {
	Conf       *core.Config
	Logger     core.Logger
	DB         *inmemdb.DB
	Mail       *emailsvc.Mock
	Validate   *validator.Validate
	Translator ut.Translator

	UserRepo user.Repository

	Users      user.Service
	Schools    school.Service
	Holidays   holiday.Service
	Academics  academic.Service
	Attendance attendance.Service
	Audit      audit.Service
	DBAdmin    dbadmin.Service
}

func NewEnv() *Env {
	conf := core.NewTestConfig()
	logger := logsvc.New(logsvc.PrefixAPI, conf)
	mail := emailsvc.NewMock(conf, logger)

	stack, err := shared.Open(conf, logger, shared.Options{Mail: mail})
	if err != nil {
		panic(err)
	}
	return &Env{
		Conf:       conf,
		Logger:     logger,
		DB:         stack.Mem,
		Mail:       mail,
		Validate:   stack.Validate,
		Translator: stack.Translator,
		UserRepo:   stack.UserRepository(),
		Users:      stack.Users,
		Schools:    stack.Schools,
		Holidays:   stack.Holidays,
		Academics:  stack.Academics,
		Attendance: stack.Attendance,
		Audit:      stack.Audit,
		DBAdmin:    stack.DBAdmin,
	}
}

// Reset empties the store & the outbox.
func (env *Env) Reset() {
	env.DB.Reset()
	env.Mail.Reset()
}

func CreateUser(
	t *testing.T,
	repo user.Repository,
	schoolID, name, uname, email, pwd string,
	roles []string,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	t.Helper()
	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		SchoolID:  schoolID,
		Name:      name,
		Username:  uname,
		Email:     email,
		Roles:     roles,
		IsActive:  isActive,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("createUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("createUser() failed: %v", err)
	}
	return usr
}

// RegisterSchool registers a school whose principal logs in as "principal" with Password.
func (env *Env) RegisterSchool(t *testing.T, code string) (school.School, user.User) {
	t.Helper()
	sch, principal, err := env.Schools.Register(context.Background(), school.RegisterSchool{
		SchoolName:        "School " + code,
		SchoolCode:        code,
		PrincipalName:     "Grace Principal",
		PrincipalUsername: "principal",
		PrincipalEmail:    "principal@" + code + ".test",
		Password:          Password,
		PasswordConfirm:   Password,
	})
	if err != nil {
		t.Fatalf("registerSchool() failed: %v", err)
	}
	return sch, principal
}

// Fixture is a school with an active session, one class, its teacher & two enrolled students.
type Fixture struct {
	School    school.School
	Principal user.User
	Session   academic.Session
	Class     academic.Class
	Teacher   academic.Teacher
	Students  []academic.Student
}

// NewFixture builds a Fixture whose session covers the 60 days around today.
func (env *Env) NewFixture(t *testing.T, code string) Fixture {
	t.Helper()
	ctx := context.Background()
	f := Fixture{}
	f.School, f.Principal = env.RegisterSchool(t, code)

	today := core.Today()
	var err error
	f.Session, err = env.Academics.CreateSession(ctx, f.School.ID, academic.SessionData{
		Name: "Session " + code, StartDate: today.AddDays(-30), EndDate: today.AddDays(30),
	})
	if err != nil {
		t.Fatalf("createSession() failed: %v", err)
	}
	f.Class, err = env.Academics.CreateClass(ctx, f.School.ID, academic.ClassData{
		SessionID: f.Session.ID, Name: "Grade 5", Section: "A",
	})
	if err != nil {
		t.Fatalf("createClass() failed: %v", err)
	}
	f.Teacher, err = env.Academics.CreateTeacher(ctx, f.School, academic.NewTeacher{
		Name: "Tom Teacher", Username: "tom", Password: Password, PasswordConfirm: Password, ClassID: f.Class.ID,
	})
	if err != nil {
		t.Fatalf("createTeacher() failed: %v", err)
	}
	for _, name := range []string{"Amani", "Baraka"} {
		st, err := env.Academics.CreateStudent(ctx, f.School, academic.NewStudent{
			Name: name + " Student", Username: core.CleanString(name, true), Password: Password, PasswordConfirm: Password,
			ClassID: f.Class.ID,
		})
		if err != nil {
			t.Fatalf("createStudent() failed: %v", err)
		}
		f.Students = append(f.Students, st)
	}
	return f
}
