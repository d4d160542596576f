// Package netif manages a single network interface through the ip command:
// link state and interface addresses.
package netif

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/vishvananda/netlink"

	"github.com/psaab/iproute2/pkg/ipcmd"
)

// Exit codes the ip command uses for the conditions below.
const (
	exitNeedsPrivilege = 2
	exitAddressState   = 254
	exitNoSuchDevice   = 255
)

var (
	ErrInvalidInterface   = errors.New("invalid interface name")
	ErrRequiresEscalation = errors.New("altering interface state requires escalated privileges")
	ErrAddressExists      = errors.New("address already exists")
	ErrAddressNotFound    = errors.New("address does not exist")
)

// Addresses holds the interface addresses per family.
type Addresses struct {
	V4 []*netlink.Addr
	V6 []*netlink.Addr
}

// Interface is a named OS network interface.
type Interface struct {
	name   string
	runner ipcmd.Runner
	addrs  Addresses
}

// Open verifies that name exists and returns a handle for it.
func Open(ctx context.Context, runner ipcmd.Runner, name string) (*Interface, error) {
	i := &Interface{runner: runner}
	if err := i.SetName(ctx, name); err != nil {
		return nil, err
	}
	return i, nil
}

// Name returns the OS interface name.
func (i *Interface) Name() string { return i.name }

// SetName points the handle at another interface after checking it exists.
func (i *Interface) SetName(ctx context.Context, name string) error {
	args := []string{"link", "show", name}
	res, err := i.runner.Run(ctx, args...)
	if err != nil {
		return err
	}
	switch res.ExitCode {
	case 0:
		i.name = name
		return nil
	case exitNoSuchDevice:
		return fmt.Errorf("%s: %w", name, ErrInvalidInterface)
	default:
		return &ipcmd.CommandError{Args: args, Result: res}
	}
}

// Up brings the link up.
func (i *Interface) Up(ctx context.Context) error {
	return i.setState(ctx, "up")
}

// Down brings the link down.
func (i *Interface) Down(ctx context.Context) error {
	return i.setState(ctx, "down")
}

func (i *Interface) setState(ctx context.Context, state string) error {
	args := []string{"link", "set", i.name, state}
	res, err := i.runner.Run(ctx, args...)
	if err != nil {
		return err
	}
	switch res.ExitCode {
	case 0:
		slog.Info("interface state changed", "interface", i.name, "state", state)
		return nil
	case exitNeedsPrivilege:
		return fmt.Errorf("%s %s: %w", i.name, state, ErrRequiresEscalation)
	default:
		return &ipcmd.CommandError{Args: args, Result: res}
	}
}

// Status returns the output of "ip link show". With simple set only the
// operational state word (UP, DOWN, UNKNOWN) is returned.
func (i *Interface) Status(ctx context.Context, simple bool) (string, error) {
	args := []string{"link", "show", i.name}
	res, err := i.runner.Run(ctx, args...)
	if err != nil {
		return "", err
	}
	if !res.OK() {
		return "", &ipcmd.CommandError{Args: args, Result: res}
	}
	if !simple {
		return res.Stdout, nil
	}
	_, after, found := strings.Cut(res.Stdout, " state ")
	if !found {
		return "", fmt.Errorf("%s: no state in link output", i.name)
	}
	fields := strings.Fields(after)
	if len(fields) == 0 {
		return "", fmt.Errorf("%s: no state in link output", i.name)
	}
	return fields[0], nil
}

// Addresses reads the interface addresses and caches them.
func (i *Interface) Addresses(ctx context.Context) (Addresses, error) {
	args := []string{"address", "show", "dev", i.name}
	res, err := i.runner.Run(ctx, args...)
	if err != nil {
		return Addresses{}, err
	}
	if !res.OK() {
		return Addresses{}, &ipcmd.CommandError{Args: args, Result: res}
	}
	addrs := parseAddresses(res.Stdout)
	i.addrs = addrs
	return addrs, nil
}

// Cached returns the addresses from the last successful read.
func (i *Interface) Cached() Addresses { return i.addrs }

// AddAddress assigns a CIDR address to the interface.
func (i *Interface) AddAddress(ctx context.Context, cidr string) error {
	return i.changeAddress(ctx, "add", cidr, ErrAddressExists)
}

// DelAddress removes a CIDR address from the interface.
func (i *Interface) DelAddress(ctx context.Context, cidr string) error {
	return i.changeAddress(ctx, "del", cidr, ErrAddressNotFound)
}

func (i *Interface) changeAddress(ctx context.Context, op, cidr string, stateErr error) error {
	if _, err := netlink.ParseAddr(cidr); err != nil {
		return fmt.Errorf("address %q: %w", cidr, err)
	}
	args := []string{"address", op, cidr, "dev", i.name}
	res, err := i.runner.Run(ctx, args...)
	if err != nil {
		return err
	}
	switch res.ExitCode {
	case 0:
	case exitAddressState:
		return fmt.Errorf("%s on %s: %w", cidr, i.name, stateErr)
	default:
		return &ipcmd.CommandError{Args: args, Result: res}
	}
	slog.Info("interface address changed", "interface", i.name, "op", op, "addr", cidr)
	_, err = i.Addresses(ctx)
	return err
}

// parseAddresses extracts "inet" and "inet6" lines from ip address output.
func parseAddresses(out string) Addresses {
	var a Addresses
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		switch fields[0] {
		case "inet", "inet6":
		default:
			continue
		}
		addr, err := netlink.ParseAddr(fields[1])
		if err != nil {
			// point-to-point lines carry the local address without a mask
			slog.Debug("skipping unparsable address", "addr", fields[1], "err", err)
			continue
		}
		if fields[0] == "inet" {
			a.V4 = append(a.V4, addr)
		} else {
			a.V6 = append(a.V6, addr)
		}
	}
	return a
}
