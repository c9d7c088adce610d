package main

import (
	"context"
	"expvar"
	"fmt"
	"net/http"
	_ "net/http/pprof"

	echoapi "github.com/trezcool/attendly/apps/api/echo"
	"github.com/trezcool/attendly/apps/shared"
	"github.com/trezcool/attendly/core"
	"github.com/trezcool/attendly/core/audit"
	cachesvc "github.com/trezcool/attendly/services/cache"
	eventsvc "github.com/trezcool/attendly/services/events"
	logsvc "github.com/trezcool/attendly/services/logger"
)

func main() {
	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig()

	// set up loggers
	logger := logsvc.New(logsvc.PrefixAPI, conf)
	logger.Enable(!conf.Debug)
	defer logger.Close()

	dbLogger := logsvc.New(logsvc.PrefixDB, conf)
	dbLogger.Enable(!conf.Debug)

	// set up storage & services
	stack, err := shared.Open(conf, dbLogger, shared.Options{Migrate: true})
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up storage: %v", err), err)
	}
	defer func() {
		if err := stack.Close(); err != nil {
			dbLogger.Error("failed to close database", err)
		}
	}()

	cache := cachesvc.New(conf, logger)
	defer func() { _ = cache.Close() }()

	// audit entries go through the broker when there is one
	var recorder audit.Recorder = stack.Audit
	if conf.AMQP.URL != "" {
		publisher := eventsvc.NewAuditPublisher(conf, stack.Audit, logger)
		defer publisher.Close()
		recorder = publisher
	}

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : %s", conf))
	defer logger.Info("Application stopped")

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.

	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)
	expvar.NewString("database").Set(conf.Database.Engine)

	if conf.Server.DebugHost != "" {
		go func() {
			if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
				logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
			}
		}()
	}

	// =========================================================================
	// Start API Service

	server := echoapi.NewServer(echoapi.ServerDeps{
		Conf:          conf,
		Logger:        logger,
		Validate:      stack.Validate,
		Translator:    stack.Translator,
		Cache:         cache,
		UserSvc:       stack.Users,
		SchoolSvc:     stack.Schools,
		HolidaySvc:    stack.Holidays,
		AcademicSvc:   stack.Academics,
		AttendanceSvc: stack.Attendance,
		AuditSvc:      stack.Audit,
		AuditRecorder: recorder,
		DBAdminSvc:    stack.DBAdmin,
	})

	go server.Start()

	// =========================================================================
	// Shutdown

	select {
	case err := <-server.Errors():
		logger.Error(fmt.Sprintf("server error: %v", err), err)

	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		// give outstanding requests a deadline for completion
		ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()

		// asking listener to shutdown and shed load
		if err := server.Shutdown(ctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

			if err := server.Close(); err != nil {
				logger.Error(fmt.Sprintf("could not force stop server: %v", err), err)
			}
		}
	}
}
