// Package logging configures the process-wide slog logger: a text or JSON
// handler on stderr or a rotating file, with optional remote syslog
// forwarding.
package logging

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// SyslogTarget is one remote syslog server.
type SyslogTarget struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Facility string `yaml:"facility"`
	Severity string `yaml:"severity"`
}

// Options selects the log level, format and destinations.
type Options struct {
	Level    string         `yaml:"level"`  // debug, info, warn, error
	Format   string         `yaml:"format"` // text or json
	File     string         `yaml:"file"`
	MaxSize  int64          `yaml:"max_size"`
	MaxFiles int            `yaml:"max_files"`
	Syslog   []SyslogTarget `yaml:"syslog"`
}

// Logger owns whatever Setup opened.
type Logger struct {
	*slog.Logger
	handler *SyslogHandler
	file    *RotatingFile
}

// Close stops syslog forwarding and closes the log file.
func (l *Logger) Close() error {
	if l.handler != nil {
		l.handler.Close()
	}
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

// ParseLevel maps a level name to an slog.Level. Empty means info.
func ParseLevel(name string) (slog.Level, error) {
	var lvl slog.Level
	if name == "" {
		return slog.LevelInfo, nil
	}
	if err := lvl.UnmarshalText([]byte(name)); err != nil {
		return 0, fmt.Errorf("log level %q: %w", name, err)
	}
	return lvl, nil
}

// New builds a logger from opts writing to w unless opts.File is set.
func New(opts Options, w io.Writer) (*Logger, error) {
	lvl, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, err
	}

	l := &Logger{}
	if opts.File != "" {
		if l.file, err = OpenRotatingFile(opts.File, opts.MaxSize, opts.MaxFiles); err != nil {
			return nil, err
		}
		w = l.file
	}

	hopts := &slog.HandlerOptions{Level: lvl}
	var base slog.Handler
	switch strings.ToLower(opts.Format) {
	case "", "text":
		base = slog.NewTextHandler(w, hopts)
	case "json":
		base = slog.NewJSONHandler(w, hopts)
	default:
		l.Close()
		return nil, fmt.Errorf("log format %q: want text or json", opts.Format)
	}

	l.handler = NewSyslogHandler(base)
	var clients []*SyslogClient
	var errs []error
	for _, t := range opts.Syslog {
		c, err := NewSyslogClient(t.Host, t.Port)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		c.Facility = ParseFacility(t.Facility)
		c.MinSeverity = ParseSeverity(t.Severity)
		clients = append(clients, c)
	}
	l.handler.SetClients(clients)
	l.Logger = slog.New(l.handler)
	if len(errs) > 0 {
		l.Close()
		return nil, errors.Join(errs...)
	}
	return l, nil
}

// Setup builds a logger and installs it as the slog default.
func Setup(opts Options, w io.Writer) (*Logger, error) {
	l, err := New(opts, w)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(l.Logger)
	return l, nil
}
