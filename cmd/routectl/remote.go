package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/encoding/protojson"

	"github.com/psaab/iproute2/pkg/grpcapi"
)

const remoteUsage = "usage: routectl -remote ADDR parse|canonicalize ROUTE... | tables"

// runRemote sends one request to routegrammard and prints the reply.
func runRemote(addr string, args []string) error {
	if len(args) == 0 {
		return errors.New(remoteUsage)
	}

	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer conn.Close()
	client := grpcapi.NewClient(conn)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	line := strings.Join(args[1:], " ")
	switch args[0] {
	case "parse":
		out, err := client.Parse(ctx, line)
		if err != nil {
			return remoteError(err)
		}
		data, err := protojson.MarshalOptions{Multiline: true, Indent: "  "}.Marshal(out)
		if err != nil {
			return err
		}
		fmt.Println(string(data))

	case "canonicalize":
		canonical, err := client.Canonicalize(ctx, line)
		if err != nil {
			return remoteError(err)
		}
		fmt.Println(canonical)

	case "tables":
		tables, err := client.ListTables(ctx)
		if err != nil {
			return remoteError(err)
		}
		fmt.Fprintf(os.Stdout, "%-16s %-7s %s\n", "Name", "Routes", "Description")
		for _, t := range tables {
			fmt.Fprintf(os.Stdout, "%-16v %-7v %v\n", t["name"], t["routes"], t["description"])
		}

	default:
		return errors.New(remoteUsage)
	}
	return nil
}

// remoteError prefixes a parse failure with its error kind.
func remoteError(err error) error {
	if kind := grpcapi.ErrorKind(err); kind != "" {
		return fmt.Errorf("%s: %w", kind, err)
	}
	return err
}
