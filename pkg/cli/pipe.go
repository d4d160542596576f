package cli

import (
	"fmt"
	"io"
	"strconv"
	"strings"
)

// extractPipe splits a line at the last "| <filter>" expression.
func extractPipe(line string) (cmd, filter, arg string, ok bool) {
	idx := strings.LastIndex(line, " | ")
	if idx < 0 {
		return line, "", "", false
	}
	cmd = strings.TrimSpace(line[:idx])
	parts := strings.SplitN(strings.TrimSpace(line[idx+3:]), " ", 2)
	filter = parts[0]
	if len(parts) > 1 {
		arg = parts[1]
	}
	switch filter {
	case "match", "except", "find", "count", "last":
		return cmd, filter, arg, true
	}
	return line, "", "", false
}

// applyPipe writes the lines of output that pass filter to w.
func applyPipe(w io.Writer, output, filter, arg string) {
	lines := strings.Split(output, "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	lp := strings.ToLower(arg)
	switch filter {
	case "match":
		for _, line := range lines {
			if strings.Contains(strings.ToLower(line), lp) {
				fmt.Fprintln(w, line)
			}
		}
	case "except":
		for _, line := range lines {
			if !strings.Contains(strings.ToLower(line), lp) {
				fmt.Fprintln(w, line)
			}
		}
	case "find":
		found := false
		for _, line := range lines {
			if !found && strings.Contains(strings.ToLower(line), lp) {
				found = true
			}
			if found {
				fmt.Fprintln(w, line)
			}
		}
	case "count":
		fmt.Fprintf(w, "Count: %d lines\n", len(lines))
	case "last":
		n := 10
		if v, err := strconv.Atoi(arg); err == nil && v > 0 {
			n = v
		}
		start := max(len(lines)-n, 0)
		for _, line := range lines[start:] {
			fmt.Fprintln(w, line)
		}
	}
}
