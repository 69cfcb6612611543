// Command budgetsync copies Akahu transactions into Actual Budget and YNAB.
package main

import (
	"context"
	"flag"
	"os"
	"path"

	"github.com/google/subcommands"
)

var configPath = flag.String("config", os.Getenv("BUDGET_SYNC_CONFIG"), "Optional YAML config file; the environment overrides it.")

func main() {
	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))
	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.FlagsCommand(), "")

	commander.Register(&syncCmd{}, "sync")
	commander.Register(&serveCmd{}, "sync")
	commander.Register(&runsCmd{}, "history")
	commander.Register(&migrateCmd{}, "history")
	commander.Register(&mappingCmd{}, "mapping")

	flag.Parse()
	os.Exit(int(commander.Execute(context.Background())))
}
