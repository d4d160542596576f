// Package daemon implements the routegrammard lifecycle.
package daemon

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"

	"github.com/psaab/iproute2/pkg/api"
	"github.com/psaab/iproute2/pkg/config"
	"github.com/psaab/iproute2/pkg/grammar"
	"github.com/psaab/iproute2/pkg/grpcapi"
	"github.com/psaab/iproute2/pkg/logging"
	"github.com/psaab/iproute2/pkg/routetable"
)

// Options configures the daemon. Non-empty addresses override the
// configuration file.
type Options struct {
	ConfigFile string
	APIAddr    string
	GRPCAddr   string
	Debug      bool
	LogOutput  io.Writer // default os.Stderr
}

// Daemon is the main routegrammard daemon.
type Daemon struct {
	opts     Options
	cfg      *config.Config
	log      *logging.Logger
	parser   *grammar.Parser
	store    *routetable.Store
	recorder *api.Recorder
}

// New creates a new Daemon.
func New(opts Options) *Daemon {
	if opts.ConfigFile == "" {
		opts.ConfigFile = config.DefaultPath
	}
	if opts.LogOutput == nil {
		opts.LogOutput = os.Stderr
	}
	return &Daemon{opts: opts, recorder: api.NewRecorder()}
}

// Run starts the daemon and blocks until shutdown.
func (d *Daemon) Run(ctx context.Context) error {
	defer d.close()
	if err := d.init(ctx); err != nil {
		return err
	}

	// Handle signals for clean shutdown
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	err := d.serve(ctx)
	logFinalStats(d.recorder)
	slog.Info("shutdown complete")
	return err
}

// init loads the configuration, sets up logging and the parser, opens the
// store and loads the configured route files.
func (d *Daemon) init(ctx context.Context) error {
	cfg, err := config.Load(d.opts.ConfigFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if d.opts.APIAddr != "" {
		cfg.API.HTTPAddr = d.opts.APIAddr
	}
	if d.opts.GRPCAddr != "" {
		cfg.API.GRPCAddr = d.opts.GRPCAddr
	}
	if d.opts.Debug {
		cfg.Log.Level = "debug"
	}
	d.cfg = cfg

	d.log, err = logging.Setup(cfg.Log, d.opts.LogOutput)
	if err != nil {
		return fmt.Errorf("logging: %w", err)
	}

	slog.Info("starting routegrammard",
		"config", d.opts.ConfigFile,
		"pid", os.Getpid())

	opts, err := cfg.ParserOptions()
	if err != nil {
		return err
	}
	d.parser = grammar.NewParser(opts)

	if cfg.Store.Path != "" {
		d.store, err = routetable.Open(cfg.Store.Path, d.parser)
		if err != nil {
			return err
		}
		slog.Info("table store opened", "path", cfg.Store.Path)
	}

	d.loadTables(ctx)
	return nil
}

func (d *Daemon) close() {
	if d.store != nil {
		if err := d.store.Close(); err != nil {
			slog.Warn("failed to close table store", "err", err)
		}
		d.store = nil
	}
	if d.log != nil {
		d.log.Close()
		d.log = nil
	}
}

// loadTables parses every configured routes file and saves the result.
// A table that fails to load is logged and skipped.
func (d *Daemon) loadTables(ctx context.Context) int {
	loaded := 0
	for _, tc := range d.cfg.Tables {
		t, err := d.loadTable(tc)
		if err != nil {
			slog.Warn("failed to load table", "table", tc.Name, "file", tc.File, "err", err)
			continue
		}
		if d.store != nil {
			if err := d.store.SaveTable(ctx, t); err != nil {
				slog.Warn("failed to save table", "table", tc.Name, "err", err)
				continue
			}
		}
		slog.Info("table loaded", "table", tc.Name, "routes", t.Len())
		loaded++
	}
	return loaded
}

func (d *Daemon) loadTable(tc config.TableConfig) (*routetable.Table, error) {
	t := routetable.New(tc.Name, tc.Description)
	if tc.File == "" {
		return t, nil
	}
	f, err := os.Open(tc.File)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if _, err := t.Load(d.parser, tc.File, f); err != nil {
		return nil, err
	}
	return t, nil
}

// serve runs the enabled listeners until ctx ends or one of them fails.
func (d *Daemon) serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg    sync.WaitGroup
		errCh = make(chan error, 2)
	)
	start := func(name string, run func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := run(ctx); err != nil {
				errCh <- fmt.Errorf("%s: %w", name, err)
				cancel()
			}
		}()
	}

	if addr := d.cfg.API.HTTPAddr; addr != "" {
		acfg := api.Config{
			Addr:     addr,
			Parser:   d.parser,
			Recorder: d.recorder,
			Auth:     api.NewAuth(d.cfg.API),
		}
		if d.store != nil {
			acfg.Tables = d.store
		}
		start("HTTP API", api.NewServer(acfg).Run)
	}
	if addr := d.cfg.API.GRPCAddr; addr != "" {
		gcfg := grpcapi.Config{Parser: d.parser, Recorder: d.recorder}
		if d.store != nil {
			gcfg.Tables = d.store
		}
		start("gRPC API", grpcapi.NewServer(addr, gcfg).Run)
	}

	<-ctx.Done()
	slog.Info("shutting down")
	wg.Wait()
	close(errCh)
	return <-errCh
}

// logFinalStats logs the parse counters before shutdown.
func logFinalStats(rec *api.Recorder) {
	counts := rec.Counts()
	keys := make([]api.CountKey, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Source != keys[j].Source {
			return keys[i].Source < keys[j].Source
		}
		return keys[i].Result < keys[j].Result
	})

	attrs := make([]any, 0, len(keys)*2)
	for _, k := range keys {
		attrs = append(attrs, k.Source+"_"+k.Result, counts[k])
	}
	slog.Info("final statistics", attrs...)
}
