// routectl is the interactive shell for the iproute2 route grammar.
//
// Without flags it opens a readline shell over a local parser and the
// table store named in the configuration. -c runs one command, -f runs a
// script, and -remote sends parse requests to a routegrammard instance.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/psaab/iproute2/pkg/cli"
	"github.com/psaab/iproute2/pkg/config"
	"github.com/psaab/iproute2/pkg/ipcmd"
	"github.com/psaab/iproute2/pkg/logging"
	"github.com/psaab/iproute2/pkg/routetable"
)

func main() {
	configFile := flag.String("config", config.DefaultPath, "configuration file path")
	command := flag.String("c", "", "run one command and exit")
	script := flag.String("f", "", "run commands from a file and exit")
	remote := flag.String("remote", "", "routegrammard gRPC address; arguments are parse|canonicalize|tables")
	noStore := flag.Bool("no-store", false, "do not open the table store")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	level := "warn"
	if *debug {
		level = "debug"
	}
	logger, err := logging.Setup(logging.Options{Level: level}, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "routectl: %v\n", err)
		os.Exit(1)
	}
	defer logger.Close()

	if *remote != "" {
		if err := runRemote(*remote, flag.Args()); err != nil {
			fmt.Fprintf(os.Stderr, "routectl: %v\n", err)
			os.Exit(1)
		}
		return
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "routectl: %v\n", err)
		os.Exit(1)
	}
	opts, err := cfg.ParserOptions()
	if err != nil {
		fmt.Fprintf(os.Stderr, "routectl: %v\n", err)
		os.Exit(1)
	}

	var store cli.TableStore
	if cfg.Store.Path != "" && !*noStore {
		st, err := routetable.Open(cfg.Store.Path, nil)
		if err != nil {
			slog.Warn("table store unavailable, tables are kept in memory", "path", cfg.Store.Path, "err", err)
		} else {
			defer st.Close()
			store = st
		}
	}

	shell := cli.New(opts, store)
	shell.SetRunner(ipcmd.NewExecRunner(cfg.IP.Binary, cfg.IP.Timeout))

	switch {
	case *command != "":
		err = shell.Execute(*command)
	case *script != "":
		err = runScript(shell, *script)
	default:
		err = shell.Run()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "routectl: %v\n", err)
		os.Exit(1)
	}
}

func runScript(shell *cli.CLI, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return shell.RunFile(path, f)
}
