// routegrammard serves the iproute2 route grammar parser over HTTP and
// gRPC and keeps named route tables in a local sqlite store.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/psaab/iproute2/pkg/config"
	"github.com/psaab/iproute2/pkg/daemon"
)

func main() {
	configFile := flag.String("config", config.DefaultPath, "configuration file path")
	apiAddr := flag.String("api-addr", "", "HTTP API listen address (overrides config)")
	grpcAddr := flag.String("grpc-addr", "", "gRPC API listen address (overrides config)")
	debug := flag.Bool("debug", false, "enable debug logging")
	checkConfig := flag.Bool("check-config", false, "validate the configuration and exit")
	flag.Parse()

	if *checkConfig {
		cfg, err := config.Load(*configFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "routegrammard: %v\n", err)
			os.Exit(1)
		}
		out, err := cfg.Marshal()
		if err != nil {
			fmt.Fprintf(os.Stderr, "routegrammard: %v\n", err)
			os.Exit(1)
		}
		os.Stdout.Write(out)
		return
	}

	d := daemon.New(daemon.Options{
		ConfigFile: *configFile,
		APIAddr:    *apiAddr,
		GRPCAddr:   *grpcAddr,
		Debug:      *debug,
	})

	if err := d.Run(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "routegrammard: %v\n", err)
		os.Exit(1)
	}
}
