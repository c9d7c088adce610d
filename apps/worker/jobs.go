package main

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"

	"github.com/trezcool/attendly/core"
	"github.com/trezcool/attendly/core/school"
)

const jobTimeout = 4 * time.Minute

// cronLogger hands the scheduler's logs to the app logger.
type cronLogger struct {
	logger core.Logger
}

var _ cron.Logger = cronLogger{}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(fmt.Sprintf("cron: %s %v", msg, keysAndValues))
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(fmt.Sprintf("cron: %s %v: %v", msg, keysAndValues, err), err)
}

// expireSubscriptions flags the lapsed subscriptions of every school as expired.
func expireSubscriptions(ctx context.Context, schools school.Service, logger core.Logger) {
	ctx, cancel := context.WithTimeout(ctx, jobTimeout)
	defer cancel()

	n, err := schools.ExpireSubscriptions(ctx)
	if err != nil {
		logger.Error(fmt.Sprintf("expiring subscriptions: %v", err), err)
		return
	}
	if n > 0 {
		logger.Info(fmt.Sprintf("expired %d subscription(s)", n))
	}
}

// newScheduler registers the periodic jobs; a run still going on makes the next one skip.
func newScheduler(ctx context.Context, conf *core.Config, schools school.Service, logger core.Logger) (*cron.Cron, error) {
	clog := cronLogger{logger: logger}
	c := cron.New(cron.WithLogger(clog), cron.WithChain(cron.Recover(clog), cron.SkipIfStillRunning(clog)))

	_, err := c.AddFunc(conf.Worker.ExpirySchedule, func() { expireSubscriptions(ctx, schools, logger) })
	if err != nil {
		return nil, errors.Wrapf(err, "scheduling subscription expiry %q", conf.Worker.ExpirySchedule)
	}
	return c, nil
}
