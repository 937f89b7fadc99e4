// Package main defines the ephemerisd entry point: the HTTP service by
// default, or a single stdio compute worker via the hidden worker
// subcommand the service forks for itself.
package main

import (
	"fmt"
	"os"
	goruntime "runtime"
	runtimeDebug "runtime/debug"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"

	"github.com/siderealabs/ephemerisd/ephemeris/pool"
	"github.com/siderealabs/ephemerisd/node"
	"github.com/siderealabs/ephemerisd/runtime/version"
)

var log = logrus.WithField("prefix", "main")

var appFlags = []cli.Flag{
	configFileFlag,
	verbosityFlag,
	logFormatFlag,
}

var workerCommand = &cli.Command{
	Name:   "worker",
	Usage:  "Run one compute worker over stdin/stdout. Forked internally by the service",
	Hidden: true,
	Flags:  []cli.Flag{workerManifestFlag},
	Action: func(ctx *cli.Context) error {
		return pool.RunWorker(ctx.String(workerManifestFlag.Name))
	},
}

func startNode(ctx *cli.Context) error {
	n, err := node.New(ctx)
	if err != nil {
		return err
	}
	n.Start()
	return nil
}

func main() {
	app := cli.App{}
	app.Name = "ephemerisd"
	app.Usage = "a service computing apparent geocentric and topocentric body positions from JPL kernels"
	app.Version = version.Version()
	app.Action = startNode
	app.Flags = appFlags
	app.Commands = []*cli.Command{workerCommand}

	app.Before = func(ctx *cli.Context) error {
		goruntime.GOMAXPROCS(goruntime.NumCPU())
		level, err := logrus.ParseLevel(ctx.String(verbosityFlag.Name))
		if err != nil {
			return err
		}
		logrus.SetLevel(level)
		switch format := ctx.String(logFormatFlag.Name); format {
		case "text":
			formatter := new(prefixed.TextFormatter)
			formatter.TimestampFormat = "2006-01-02 15:04:05"
			formatter.FullTimestamp = true
			logrus.SetFormatter(formatter)
		case "json":
			logrus.SetFormatter(&logrus.JSONFormatter{})
		default:
			return fmt.Errorf("unknown log format %q", format)
		}
		return nil
	}

	defer func() {
		if x := recover(); x != nil {
			log.Errorf("Runtime panic: %v\n%v", x, string(runtimeDebug.Stack()))
			panic(x)
		}
	}()

	if err := app.Run(os.Args); err != nil {
		log.Error(err.Error())
		os.Exit(1)
	}
}
