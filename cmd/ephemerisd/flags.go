package main

import "github.com/urfave/cli/v2"

var (
	configFileFlag = &cli.StringFlag{
		Name:  "config",
		Usage: "Path to a yaml configuration file",
	}
	verbosityFlag = &cli.StringFlag{
		Name:  "verbosity",
		Usage: "Logging verbosity (trace, debug, info, warn, error, fatal, panic)",
		Value: "info",
	}
	logFormatFlag = &cli.StringFlag{
		Name:  "log-format",
		Usage: "Specify log formatting. Supports: text, json",
		Value: "text",
	}
	workerManifestFlag = &cli.StringFlag{
		Name:     "manifest",
		Usage:    "Path to the kernel bundle manifest the worker loads",
		Required: true,
	}
)
