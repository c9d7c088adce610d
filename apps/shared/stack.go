package shared

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/attendly/core"
	"github.com/trezcool/attendly/core/academic"
	"github.com/trezcool/attendly/core/attendance"
	"github.com/trezcool/attendly/core/audit"
	"github.com/trezcool/attendly/core/dbadmin"
	"github.com/trezcool/attendly/core/holiday"
	"github.com/trezcool/attendly/core/school"
	"github.com/trezcool/attendly/core/user"
	appfs "github.com/trezcool/attendly/fs"
	emailsvc "github.com/trezcool/attendly/services/email"
	"github.com/trezcool/attendly/storage/database"
	inmemdb "github.com/trezcool/attendly/storage/database/inmem"
	"github.com/trezcool/attendly/storage/database/sqlxrepos"
)

const commonPasswordsFile = "assets/common-passwords.txt"

// Stack holds the services of the application, on top of either postgres or the memory engine.
type Stack struct {
	Conf       *core.Config
	Logger     core.Logger
	Validate   *validator.Validate
	Translator ut.Translator
	Mail       core.EmailService

	DB  *sqlx.DB    // nil on the memory engine
	Mem *inmemdb.DB // nil on postgres

	repos repositories

	Users      user.Service
	Schools    school.Service
	Holidays   holiday.Service
	Academics  academic.Service
	Attendance attendance.Service
	Audit      audit.Service
	DBAdmin    dbadmin.Service
}

type repositories struct {
	user       user.Repository
	school     school.Repository
	holiday    holiday.Repository
	academic   academic.Repository
	attendance attendance.Repository
	audit      audit.Repository
	dbadmin    dbadmin.Repository
}

// Options tweak what Open does besides wiring.
type Options struct {
	// Migrate creates the database if needed & applies the pending migrations.
	Migrate bool
	// Mail overrides the mail service picked from the config.
	Mail core.EmailService
}

// Open connects the storage named by conf.Database.Engine and builds the services on it.
func Open(conf *core.Config, logger core.Logger, opts Options) (*Stack, error) {
	s := &Stack{Conf: conf, Logger: logger, Mail: opts.Mail}
	s.Validate, s.Translator = NewValidator()
	core.ParseEmailTemplates(appfs.FS, conf, logger)
	user.LoadCommonPasswords(appfs.FS, commonPasswordsFile, logger)

	if s.Mail == nil {
		if conf.Debug || conf.SendgridApiKey == "" {
			s.Mail = emailsvc.NewConsoleService(conf, logger)
		} else {
			s.Mail = emailsvc.NewSendgridService(conf, logger)
		}
	}

	if conf.Database.InMemory() {
		s.Mem = inmemdb.Open()
		s.repos = repositories{
			user:       inmemdb.NewUserRepository(s.Mem),
			school:     inmemdb.NewSchoolRepository(s.Mem),
			holiday:    inmemdb.NewHolidayRepository(s.Mem),
			academic:   inmemdb.NewAcademicRepository(s.Mem),
			attendance: inmemdb.NewAttendanceRepository(s.Mem),
			audit:      inmemdb.NewAuditRepository(s.Mem),
			dbadmin:    inmemdb.NewDBAdminRepository(s.Mem),
		}
	} else {
		db, err := openPostgres(conf, opts.Migrate)
		if err != nil {
			return nil, err
		}
		s.DB = db
		s.repos = repositories{
			user:       sqlxrepos.NewUserRepository(db),
			school:     sqlxrepos.NewSchoolRepository(db),
			holiday:    sqlxrepos.NewHolidayRepository(db),
			academic:   sqlxrepos.NewAcademicRepository(db),
			attendance: sqlxrepos.NewAttendanceRepository(db),
			audit:      sqlxrepos.NewAuditRepository(db),
			dbadmin:    sqlxrepos.NewDBAdminRepository(db),
		}
	}

	s.Users = user.NewService(s.repos.user, s.Mail, logger, conf)
	s.Schools = school.NewService(s.repos.school, s.Users, s.Mail, logger, s.Validate, conf)
	s.Holidays = holiday.NewService(s.repos.holiday, logger, s.Validate)
	s.Academics = academic.NewService(s.repos.academic, s.Users, s.Mail, logger, s.Validate, s.Translator)
	s.Attendance = attendance.NewService(s.repos.attendance, s.Academics, s.Holidays, logger, s.Validate)
	s.Audit = audit.NewService(s.repos.audit, logger)
	s.DBAdmin = dbadmin.NewService(s.repos.dbadmin, logger, conf)
	return s, nil
}

func openPostgres(conf *core.Config, migrate bool) (*sqlx.DB, error) {
	if migrate {
		if err := database.CreateIfNotExist(conf); err != nil {
			return nil, errors.Wrap(err, "creating database")
		}
	}
	db, err := database.Open(conf)
	if err != nil {
		return nil, err
	}
	if migrate {
		if err := database.Migrate(db, "up"); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return db, nil
}

// UserRepository exposes the user store to the admin commands that bypass the service rules.
func (s *Stack) UserRepository() user.Repository {
	return s.repos.user
}

func (s *Stack) Close() error {
	if s.DB != nil {
		return s.DB.Close()
	}
	return nil
}
