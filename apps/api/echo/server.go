package echoapi

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/trezcool/attendly/core"
	"github.com/trezcool/attendly/core/academic"
	"github.com/trezcool/attendly/core/attendance"
	"github.com/trezcool/attendly/core/audit"
	"github.com/trezcool/attendly/core/dbadmin"
	"github.com/trezcool/attendly/core/holiday"
	"github.com/trezcool/attendly/core/school"
	"github.com/trezcool/attendly/core/user"
	cachesvc "github.com/trezcool/attendly/services/cache"
)

type (
	ServerDeps struct {
		Conf           *core.Config
		Logger         core.Logger
		Validate       *validator.Validate
		Translator     ut.Translator
		Cache          *cachesvc.Client
		DisableReqLogs bool

		UserSvc       user.Service
		SchoolSvc     school.Service
		HolidaySvc    holiday.Service
		AcademicSvc   academic.Service
		AttendanceSvc attendance.Service
		AuditSvc      audit.Service
		DBAdminSvc    dbadmin.Service
		// AuditRecorder receives the audit entries of the mutations; defaults to AuditSvc.
		AuditRecorder audit.Recorder
	}

	Server interface {
		http.Handler
		Start()
		Shutdown(ctx context.Context) error
		Close() error
		Errors() <-chan error
		ShutdownSignal() <-chan os.Signal
	}

	server struct {
		deps     ServerDeps
		app      *echo.Echo
		auth     *Auth
		errors   chan error
		shutdown chan os.Signal
	}
)

var _ Server = (*server)(nil)

func NewServer(deps ServerDeps) Server {
	if deps.AuditRecorder == nil {
		deps.AuditRecorder = deps.AuditSvc
	}
	s := &server{
		deps:     deps,
		app:      echo.New(),
		auth:     NewAuth(deps.Conf, deps.Cache),
		errors:   make(chan error, 1),
		shutdown: make(chan os.Signal, 1),
	}
	signal.Notify(s.shutdown, os.Interrupt, syscall.SIGTERM)
	s.setup()
	return s
}

func (s *server) setup() {
	conf := s.deps.Conf

	s.app.HideBanner = true
	s.app.Pre(middleware.RemoveTrailingSlash())
	if !s.deps.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}
	if len(conf.Server.CORSOrigins) > 0 {
		s.app.Use(middleware.CORSWithConfig(middleware.CORSConfig{AllowOrigins: conf.Server.CORSOrigins}))
	}

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.deps.Logger, s.deps.Translator, s.signalShutdown)
	s.app.Debug = conf.Debug

	s.app.GET("/", s.home)

	g := s.app.Group("/api")
	jwt := s.auth.Middleware()
	authed := g.Group("", jwt, invalidateMiddleware(s.deps.Cache, s.deps.Logger))

	registerAuthAPI(g, jwt, s)
	registerUserAPI(authed, s)
	registerSchoolAPI(g, authed, s)
	registerHolidayAPI(authed, s)
	registerAcademicAPI(authed, s)
	registerAttendanceAPI(authed, s)
	registerAuditAPI(authed, s)
	registerDBAdminAPI(authed, s)
}

func (s *server) Start() {
	if err := s.app.Start(s.deps.Conf.Server.Host); err != nil && err != http.ErrServerClosed {
		s.errors <- err
	}
}

func (s *server) Shutdown(ctx context.Context) error {
	return s.app.Shutdown(ctx)
}

func (s *server) Close() error {
	return s.app.Close()
}

func (s *server) Errors() <-chan error {
	return s.errors
}

func (s *server) ShutdownSignal() <-chan os.Signal {
	return s.shutdown
}

func (s *server) signalShutdown() {
	select {
	case s.shutdown <- syscall.SIGTERM:
	default:
	}
}

func (s *server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func (s *server) home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to "+s.deps.Conf.AppName+" API!")
}
