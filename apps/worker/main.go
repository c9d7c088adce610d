package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/trezcool/attendly/apps/shared"
	"github.com/trezcool/attendly/core"
	eventsvc "github.com/trezcool/attendly/services/events"
	logsvc "github.com/trezcool/attendly/services/logger"
)

func main() {
	conf := core.NewConfig()

	logger := logsvc.New(logsvc.PrefixWorker, conf)
	logger.Enable(!conf.Debug)
	defer logger.Close()

	stack, err := shared.Open(conf, logger, shared.Options{})
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up storage: %v", err), err)
	}
	defer func() {
		if err := stack.Close(); err != nil {
			logger.Error("failed to close database", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info(fmt.Sprintf("Worker initializing : %s", conf))
	defer logger.Info("Worker stopped")

	scheduler, err := newScheduler(ctx, conf, stack.Schools, logger)
	if err != nil {
		logger.Fatal(err.Error(), err)
	}
	scheduler.Start()

	var wg sync.WaitGroup
	if conf.AMQP.URL != "" {
		consumer := eventsvc.NewAuditConsumer(conf, stack.Audit, logger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := consumer.Run(ctx); err != nil {
				logger.Error(fmt.Sprintf("audit consumer: %v", err), err)
			}
		}()
	} else {
		logger.Warn("AMQP url is not set: audit entries are stored by the API itself")
	}

	<-ctx.Done()
	logger.Info("Start shutdown...")

	// wait for the running jobs
	<-scheduler.Stop().Done()
	wg.Wait()
}
