package main

import (
	"os"

	"github.com/trezcool/attendly/apps/shared"
	"github.com/trezcool/attendly/core"
	logsvc "github.com/trezcool/attendly/services/logger"
)

func main() {
	conf := core.NewConfig()
	logger := logsvc.New(logsvc.PrefixAdmin, conf)
	logger.Enable(!conf.Debug)

	stack, err := shared.Open(conf, logger, shared.Options{})
	if err != nil {
		logger.Fatal("opening stack", err)
	}

	cli := newCommandLine(stack)
	err = cli.run(os.Args)
	_ = stack.Close()
	logger.Close()
	if err != nil {
		if err != errHelp {
			logger.Error("\nerror: "+err.Error(), err)
		}
		os.Exit(1)
	}
}
