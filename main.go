package main

import (
	"fmt"
	"os"

	"github.com/vllmd-project/launcher/cmd"
	"github.com/vllmd-project/launcher/pkg/logging"

	"github.com/urfave/cli"
	"go.uber.org/zap/zapcore"
)

func main() {
	app := cli.NewApp()
	app.Name = "vllmd"
	app.Usage = "multi-instance vLLM inference server launcher"
	app.Commands = []cli.Command{cmd.ServeCommand}
	app.Flags = []cli.Flag{
		cli.BoolFlag{Name: "v", Usage: "enable debug logging"},
	}
	// Disable the built-in -v flag (version), since -v is used for verbosity
	// here; version is served over the REST API instead (GET /version).
	app.HideVersion = true
	app.Before = func(c *cli.Context) error {
		configureLogging(c)
		return nil
	}

	err := app.Run(os.Args)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func configureLogging(c *cli.Context) {
	// The LOG_LEVEL environment variable takes precedence.
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		var l zapcore.Level
		if err := l.UnmarshalText([]byte(level)); err != nil {
			panic(err)
		}
		logging.SetLevel(l)
		return
	}

	if c.GlobalBool("v") {
		logging.SetLevel(zapcore.DebugLevel)
	}
}
