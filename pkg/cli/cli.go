// Package cli implements the routectl interactive shell.
package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/alecthomas/repr"
	"github.com/chzyer/readline"
	"github.com/fatih/color"

	"github.com/psaab/iproute2/pkg/cmdtree"
	"github.com/psaab/iproute2/pkg/frr"
	"github.com/psaab/iproute2/pkg/grammar"
	"github.com/psaab/iproute2/pkg/ipcmd"
	"github.com/psaab/iproute2/pkg/netif"
	"github.com/psaab/iproute2/pkg/routetable"
	"github.com/psaab/iproute2/pkg/routing"
)

// TableStore persists route tables. *routetable.Store satisfies it.
type TableStore interface {
	SaveTable(ctx context.Context, t *routetable.Table) error
	LoadTable(ctx context.Context, name string) (*routetable.Table, error)
	DeleteTable(ctx context.Context, name string) error
	ListTables(ctx context.Context) ([]routetable.TableInfo, error)
}

// CLI is the interactive command-line interface.
type CLI struct {
	rl     *readline.Instance
	out    io.Writer
	errOut io.Writer

	opts   grammar.Options
	parser *grammar.Parser
	tables map[string]*routetable.Table
	store  TableStore // may be nil
	runner ipcmd.Runner

	ok   *color.Color
	warn *color.Color
	fail *color.Color
}

var errExit = errors.New("exit")

const storeTimeout = 5 * time.Second

// New creates a new CLI. store may be nil.
func New(opts grammar.Options, store TableStore) *CLI {
	return &CLI{
		out:    os.Stdout,
		errOut: os.Stderr,
		opts:   opts,
		parser: grammar.NewParser(opts),
		tables: make(map[string]*routetable.Table),
		store:  store,
		runner: ipcmd.NewExecRunner("ip", storeTimeout),
		ok:     color.New(color.FgGreen),
		warn:   color.New(color.FgYellow),
		fail:   color.New(color.FgRed),
	}
}

// SetOutput redirects command output and error reports.
func (c *CLI) SetOutput(out, errOut io.Writer) {
	c.out = out
	c.errOut = errOut
}

// SetRunner replaces the runner used to query interfaces.
func (c *CLI) SetRunner(r ipcmd.Runner) { c.runner = r }

// Options returns the current parser options.
func (c *CLI) Options() grammar.Options { return c.opts }

// TableNames lists the tables known in memory and in the store.
func (c *CLI) TableNames() []string {
	names := make([]string, 0, len(c.tables))
	for n := range c.tables {
		names = append(names, n)
	}
	if c.store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		defer cancel()
		if infos, err := c.store.ListTables(ctx); err == nil {
			for _, ti := range infos {
				names = append(names, ti.Name)
			}
		}
	}
	slices.Sort(names)
	return slices.Compact(names)
}

// Run starts the interactive CLI loop.
func (c *CLI) Run() error {
	var err error
	c.rl, err = readline.NewEx(&readline.Config{
		Prompt:          "routectl> ",
		HistoryFile:     filepath.Join(os.TempDir(), "routectl_history"),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		AutoComplete:    &completer{cli: c},
		Listener:        readline.FuncListener(c.helpListener),
	})
	if err != nil {
		return fmt.Errorf("readline init: %w", err)
	}
	defer c.rl.Close()
	c.SetOutput(c.rl.Stdout(), c.rl.Stderr())

	fmt.Fprintln(c.out, "routectl - iproute2 route grammar shell")
	fmt.Fprintln(c.out, "Type '?' for help")
	fmt.Fprintln(c.out)

	for {
		line, err := c.rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			if err == io.EOF {
				return nil
			}
			return err
		}
		if err := c.Execute(line); err != nil {
			if err == errExit {
				return nil
			}
			c.fail.Fprintf(c.errOut, "error: %v\n", err)
		}
	}
}

// RunFile executes every non-empty, non-comment line of r. It stops at
// the first failing command.
func (c *CLI) RunFile(name string, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("read %s: %w", name, err)
	}
	for i, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if err := c.Execute(line); err != nil {
			if err == errExit {
				return nil
			}
			return fmt.Errorf("%s:%d: %w", name, i+1, err)
		}
	}
	return nil
}

// Execute runs one command line, applying a trailing pipe filter if present.
func (c *CLI) Execute(line string) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}
	cmd, filter, arg, ok := extractPipe(line)
	if !ok {
		return c.dispatch(strings.Fields(line))
	}
	var buf bytes.Buffer
	out := c.out
	c.out = &buf
	err := c.dispatch(strings.Fields(cmd))
	c.out = out
	applyPipe(out, buf.String(), filter, arg)
	return err
}

func (c *CLI) dispatch(parts []string) error {
	switch parts[0] {
	case "parse":
		return c.handleParse(parts[1:])
	case "show":
		return c.handleShow(parts[1:])
	case "set":
		return c.handleSet(parts[1:])
	case "table":
		return c.handleTable(parts[1:])
	case "?", "help":
		cmdtree.PrintTreeHelp(c.out, "Commands:", cmdtree.OperationalTree, parts[1:]...)
		return nil
	case "quit", "exit":
		return errExit
	default:
		return fmt.Errorf("unknown command: %s", parts[0])
	}
}

// parse parses route words, reporting the error kind with any failure.
func (c *CLI) parse(words []string) (*grammar.Route, error) {
	if len(words) == 0 {
		return nil, errors.New("missing route")
	}
	r, err := c.parser.Parse(words)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", grammar.ErrorKind(err), err)
	}
	return r, nil
}

func (c *CLI) handleParse(args []string) error {
	r, err := c.parse(args)
	if err != nil {
		return err
	}
	c.ok.Fprintln(c.out, r.String())
	if len(r.Remainder) > 0 {
		c.warn.Fprintf(c.out, "remainder: %s\n", strings.Join(r.Remainder, " "))
	}
	return nil
}

func (c *CLI) handleShow(args []string) error {
	if len(args) == 0 {
		cmdtree.PrintTreeHelp(c.out, "show: specify what to show", cmdtree.OperationalTree, "show")
		return nil
	}
	switch args[0] {
	case "tree":
		r, err := c.parse(args[1:])
		if err != nil {
			return err
		}
		fmt.Fprintln(c.out, repr.String(r.Map(), repr.Indent("  ")))
		return nil

	case "command":
		r, err := c.parse(args[1:])
		if err != nil {
			return err
		}
		fmt.Fprintf(c.out, "ip %s\n", strings.Join(routing.Command(r), " "))
		return nil

	case "options":
		multipath := "off"
		if c.opts.Multipath {
			multipath = "on"
		}
		fmt.Fprintf(c.out, "%-12s %s\n", "multipath", multipath)
		fmt.Fprintf(c.out, "%-12s %s\n", "duplicates", c.opts.Duplicates)
		fmt.Fprintf(c.out, "%-12s %s\n", "trailing", c.opts.Trailing)
		return nil

	case "keywords":
		return c.showKeywords(args[1:])

	case "interface":
		if len(args) != 2 {
			return errors.New("usage: show interface <name>")
		}
		return c.showInterface(args[1])

	case "tables":
		return c.showTables()

	case "frr":
		if len(args) < 2 || len(args) > 3 {
			return errors.New("usage: show frr <name> [vrf]")
		}
		t, err := c.table(args[1])
		if err != nil {
			return err
		}
		var vrf string
		if len(args) == 3 {
			vrf = args[2]
		}
		c.renderFRR(t, vrf)
		return nil

	case "table", "terse":
		if len(args) < 2 {
			return fmt.Errorf("usage: show %s <name>", args[0])
		}
		t, err := c.table(args[1])
		if err != nil {
			return err
		}
		if args[0] == "terse" {
			fmt.Fprint(c.out, routing.FormatTerse(t.Routes()))
			return nil
		}
		for _, r := range t.Routes() {
			fmt.Fprintf(c.out, "%s  %s\n", routetable.Key(r)[:12], r)
		}
		return nil

	default:
		return fmt.Errorf("unknown show target: %s", args[0])
	}
}

// renderFRR prints t as FRR static routes and warns about the first route
// that could not be expressed.
func (c *CLI) renderFRR(t *routetable.Table, vrf string) {
	out, err := frr.Render(t, vrf)
	fmt.Fprint(c.out, out)
	if err != nil {
		c.warn.Fprintf(c.out, "some routes skipped: %v\n", err)
	}
}

var keywordKinds = map[string]grammar.Kind{
	"node-spec": grammar.KindNodeSpec,
	"nexthop":   grammar.KindNextHop,
	"options":   grammar.KindOptions,
}

func (c *CLI) showKeywords(args []string) error {
	if len(args) == 0 {
		fmt.Fprintln(c.out, strings.Join(grammar.Vocabulary(), " "))
		return nil
	}
	kind, ok := keywordKinds[args[0]]
	if !ok {
		return fmt.Errorf("unknown keyword group: %s", args[0])
	}
	fmt.Fprintln(c.out, strings.Join(grammar.Keywords(kind), " "))
	return nil
}

func (c *CLI) showInterface(name string) error {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	ifc, err := netif.Open(ctx, c.runner, name)
	if err != nil {
		return err
	}
	state, err := ifc.Status(ctx, true)
	if err != nil {
		return err
	}
	addrs, err := ifc.Addresses(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "%s: %s\n", ifc.Name(), state)
	for _, a := range addrs.V4 {
		fmt.Fprintf(c.out, "  inet  %s\n", a.IPNet)
	}
	for _, a := range addrs.V6 {
		fmt.Fprintf(c.out, "  inet6 %s\n", a.IPNet)
	}
	return nil
}

func (c *CLI) showTables() error {
	stored := map[string]routetable.TableInfo{}
	if c.store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		defer cancel()
		infos, err := c.store.ListTables(ctx)
		if err != nil {
			return err
		}
		for _, ti := range infos {
			stored[ti.Name] = ti
		}
	}
	fmt.Fprintf(c.out, "%-16s %-7s %-7s %s\n", "Name", "Routes", "Stored", "Description")
	for _, name := range c.TableNames() {
		routes, desc, saved := 0, "", "no"
		if ti, ok := stored[name]; ok {
			routes, desc, saved = int(ti.Routes), ti.Description, "yes"
		}
		if t, ok := c.tables[name]; ok {
			routes, desc = t.Len(), t.Description
		}
		fmt.Fprintf(c.out, "%-16s %-7d %-7s %s\n", name, routes, saved, desc)
	}
	return nil
}

func (c *CLI) handleSet(args []string) error {
	if len(args) != 2 {
		return errors.New("usage: set multipath|duplicates|trailing <value>")
	}
	opts := c.opts
	switch args[0] {
	case "multipath":
		switch args[1] {
		case "on":
			opts.Multipath = true
		case "off":
			opts.Multipath = false
		default:
			return fmt.Errorf("multipath: expected on or off, got %q", args[1])
		}
	case "duplicates":
		d, err := grammar.ParseDuplicatePolicy(args[1])
		if err != nil {
			return err
		}
		opts.Duplicates = d
	case "trailing":
		tp, err := grammar.ParseTrailingPolicy(args[1])
		if err != nil {
			return err
		}
		opts.Trailing = tp
	default:
		return fmt.Errorf("unknown option: %s", args[0])
	}
	c.opts = opts
	c.parser = grammar.NewParser(opts)
	return nil
}

// table returns the named table from memory, loading it from the store
// on first use.
func (c *CLI) table(name string) (*routetable.Table, error) {
	if t, ok := c.tables[name]; ok {
		return t, nil
	}
	if c.store == nil {
		return nil, fmt.Errorf("%s: %w", name, routetable.ErrTableNotFound)
	}
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	t, err := c.store.LoadTable(ctx, name)
	if err != nil {
		return nil, err
	}
	c.tables[name] = t
	return t, nil
}

func (c *CLI) handleTable(args []string) error {
	if len(args) < 2 {
		cmdtree.PrintTreeHelp(c.out, "table: specify an action and a table name", cmdtree.OperationalTree, "table")
		return nil
	}
	action, name := args[0], args[1]
	switch action {
	case "create":
		if _, ok := c.tables[name]; ok {
			return fmt.Errorf("table %s already exists", name)
		}
		c.tables[name] = routetable.New(name, strings.Join(args[2:], " "))
		return nil

	case "add":
		t, err := c.table(name)
		if err != nil {
			return err
		}
		r, err := c.parse(args[2:])
		if err != nil {
			return err
		}
		if !t.Add(r) {
			c.warn.Fprintf(c.out, "duplicate route, not added: %s\n", r)
			return nil
		}
		c.ok.Fprintf(c.out, "added %s %s\n", routetable.Key(r)[:12], r)
		return nil

	case "delete":
		if len(args) != 3 {
			return errors.New("usage: table delete <name> <key>")
		}
		t, err := c.table(name)
		if err != nil {
			return err
		}
		var match []string
		for _, r := range t.Routes() {
			if k := routetable.Key(r); strings.HasPrefix(k, args[2]) {
				match = append(match, k)
			}
		}
		switch len(match) {
		case 0:
			return fmt.Errorf("no route with key %s in %s", args[2], name)
		case 1:
			t.Remove(match[0])
			return nil
		default:
			return fmt.Errorf("key %s is ambiguous in %s (%d routes)", args[2], name, len(match))
		}

	case "load":
		if len(args) != 3 {
			return errors.New("usage: table load <name> <file>")
		}
		t, ok := c.tables[name]
		if !ok {
			t = routetable.New(name, "")
		}
		f, err := os.Open(args[2])
		if err != nil {
			return err
		}
		defer f.Close()
		n, err := t.Load(c.parser, args[2], f)
		if err != nil {
			return err
		}
		c.tables[name] = t
		fmt.Fprintf(c.out, "loaded %d routes into %s\n", n, name)
		return nil

	case "export":
		if len(args) < 3 || len(args) > 4 {
			return errors.New("usage: table export <name> <file> [vrf]")
		}
		t, err := c.table(name)
		if err != nil {
			return err
		}
		var vrf string
		if len(args) == 4 {
			vrf = args[3]
		}
		section, err := frr.Render(t, vrf)
		if err != nil {
			c.warn.Fprintf(c.out, "some routes skipped: %v\n", err)
		}
		if err := frr.New(args[2]).WriteManaged(section); err != nil {
			return err
		}
		fmt.Fprintf(c.out, "exported %s to %s\n", name, args[2])
		return nil

	case "save":
		if c.store == nil {
			return errors.New("no table store configured")
		}
		t, ok := c.tables[name]
		if !ok {
			return fmt.Errorf("%s: %w", name, routetable.ErrTableNotFound)
		}
		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		defer cancel()
		if err := c.store.SaveTable(ctx, t); err != nil {
			return err
		}
		fmt.Fprintf(c.out, "saved %s (%d routes)\n", name, t.Len())
		return nil

	case "drop":
		_, inMemory := c.tables[name]
		delete(c.tables, name)
		if c.store == nil {
			if !inMemory {
				return fmt.Errorf("%s: %w", name, routetable.ErrTableNotFound)
			}
			return nil
		}
		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		defer cancel()
		err := c.store.DeleteTable(ctx, name)
		if err != nil && (!inMemory || !errors.Is(err, routetable.ErrTableNotFound)) {
			return err
		}
		return nil

	default:
		return fmt.Errorf("unknown table action: %s", action)
	}
}
