// Command imprestctl is the operator tool for the imprest service:
// schema migrations, token issuing, reports and dispute resolution.
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "imprestctl: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "imprestctl",
		Usage: "operate the imprest service",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to a YAML config file",
				EnvVars: []string{"IMPREST_CONFIG"},
			},
		},
		Commands: []*cli.Command{
			migrateCommand(),
			tokenCommand(),
			statsCommand(),
			exportCommand(),
			resolveCommand(),
		},
	}
}
