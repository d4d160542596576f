package ipcmd

import (
	"context"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requireSh(t *testing.T) string {
	t.Helper()
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("sh not available")
	}
	return sh
}

func TestExecRunnerCapturesStreams(t *testing.T) {
	r := NewExecRunner(requireSh(t), time.Second)
	res, err := r.Run(context.Background(), "-c", "echo out; echo err >&2; exit 3")
	require.NoError(t, err)
	assert.Equal(t, 3, res.ExitCode)
	assert.False(t, res.OK())
	assert.Equal(t, "out\n", res.Stdout)
	assert.Equal(t, "err\n", res.Stderr)
}

func TestExecRunnerSuccess(t *testing.T) {
	r := NewExecRunner(requireSh(t), 0)
	res, err := r.Run(context.Background(), "-c", "true")
	require.NoError(t, err)
	assert.True(t, res.OK())
}

func TestExecRunnerTimeout(t *testing.T) {
	r := NewExecRunner(requireSh(t), 50*time.Millisecond)
	_, err := r.Run(context.Background(), "-c", "sleep 5")
	assert.Error(t, err)
}

func TestExecRunnerMissingBinary(t *testing.T) {
	r := NewExecRunner("/nonexistent/ip-binary", 0)
	_, err := r.Run(context.Background(), "link")
	assert.Error(t, err)
}

func TestDefaultBinary(t *testing.T) {
	assert.Equal(t, "ip", NewExecRunner("", 0).Binary)
}

func TestCommandError(t *testing.T) {
	err := &CommandError{
		Args:   []string{"link", "set", "eth0", "up"},
		Result: Result{ExitCode: 1, Stderr: "RTNETLINK answers: Operation not permitted\n"},
	}
	assert.Equal(t, "ip link set eth0 up: exit 1: RTNETLINK answers: Operation not permitted", err.Error())
}
