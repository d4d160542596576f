package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParseSeverity(t *testing.T) {
	tests := []struct {
		name string
		want int
	}{
		{"error", SyslogError},
		{"warning", SyslogWarning},
		{"info", SyslogInfo},
		{"debug", SyslogDebug},
		{"unknown", 0},
		{"", 0},
	}
	for _, tt := range tests {
		if got := ParseSeverity(tt.name); got != tt.want {
			t.Errorf("ParseSeverity(%q) = %d, want %d", tt.name, got, tt.want)
		}
	}
}

func TestParseFacility(t *testing.T) {
	tests := []struct {
		name string
		want int
	}{
		{"kern", FacilityKern},
		{"user", FacilityUser},
		{"daemon", FacilityDaemon},
		{"auth", FacilityAuth},
		{"syslog", FacilitySyslog},
		{"local0", FacilityLocal0},
		{"local4", FacilityLocal4},
		{"local7", FacilityLocal7},
		{"unknown", FacilityLocal0},
		{"", FacilityLocal0},
	}
	for _, tt := range tests {
		if got := ParseFacility(tt.name); got != tt.want {
			t.Errorf("ParseFacility(%q) = %d, want %d", tt.name, got, tt.want)
		}
	}
}

func TestShouldSend(t *testing.T) {
	c := &SyslogClient{}
	for _, sev := range []int{SyslogError, SyslogWarning, SyslogInfo, SyslogDebug} {
		if !c.ShouldSend(sev) {
			t.Errorf("no filter: severity %d should be sent", sev)
		}
	}
	c.MinSeverity = SyslogWarning
	if !c.ShouldSend(SyslogError) || !c.ShouldSend(SyslogWarning) {
		t.Error("warning filter should pass error and warning")
	}
	if c.ShouldSend(SyslogInfo) {
		t.Error("warning filter should drop info")
	}
}

func listen(t *testing.T) (net.PacketConn, int) {
	t.Helper()
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { pc.Close() })
	return pc, pc.LocalAddr().(*net.UDPAddr).Port
}

func receive(t *testing.T, pc net.PacketConn) string {
	t.Helper()
	pc.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 4096)
	n, _, err := pc.ReadFrom(buf)
	if err != nil {
		t.Fatal(err)
	}
	return string(buf[:n])
}

func TestSyslogSendReceive(t *testing.T) {
	pc, port := listen(t)
	client, err := NewSyslogClient("127.0.0.1", port)
	if err != nil {
		t.Fatal(err)
	}
	defer client.Close()

	if err := client.Send(SyslogWarning, "test message"); err != nil {
		t.Fatal(err)
	}
	got := receive(t, pc)
	// 16*8 + 4
	if !strings.HasPrefix(got, "<132>") {
		t.Errorf("unexpected priority prefix: %q", got)
	}
	if !strings.Contains(got, "routegrammard: test message") {
		t.Errorf("message not found in %q", got)
	}
}

func TestSyslogFacilityInPriority(t *testing.T) {
	pc, port := listen(t)
	client, err := NewSyslogClient("127.0.0.1", port)
	if err != nil {
		t.Fatal(err)
	}
	defer client.Close()

	client.Facility = FacilityDaemon
	if err := client.Send(SyslogError, "error msg"); err != nil {
		t.Fatal(err)
	}
	// 3*8 + 3
	if got := receive(t, pc); !strings.HasPrefix(got, "<27>") {
		t.Errorf("unexpected priority for daemon+error: %q", got)
	}
}

func TestSyslogHandlerForwards(t *testing.T) {
	pc, port := listen(t)
	client, err := NewSyslogClient("127.0.0.1", port)
	if err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	h := NewSyslogHandler(slog.NewTextHandler(&buf, nil))
	defer h.Close()
	// clients set after deriving still reach the derived handler
	logger := slog.New(h).With("table", "main").WithGroup("route")
	h.SetClients([]*SyslogClient{client})

	logger.Warn("route rejected", "prefix", "10.0.0.0/33")

	got := receive(t, pc)
	if !strings.Contains(got, "route rejected table=main route.prefix=10.0.0.0/33") {
		t.Errorf("forwarded message = %q", got)
	}
	if !strings.Contains(buf.String(), "route rejected") {
		t.Errorf("base handler output = %q", buf.String())
	}
}

func TestNewFormats(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(Options{Level: "debug", Format: "json"}, &buf)
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()
	l.Debug("parsed", "route", "10.0.0.0/24")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("json output %q: %v", buf.String(), err)
	}
	if rec["msg"] != "parsed" || rec["route"] != "10.0.0.0/24" {
		t.Errorf("unexpected record %v", rec)
	}

	buf.Reset()
	l, err = New(Options{Level: "warn"}, &buf)
	if err != nil {
		t.Fatal(err)
	}
	l.Info("hidden")
	if buf.Len() != 0 {
		t.Errorf("info logged at warn level: %q", buf.String())
	}

	if _, err := New(Options{Format: "xml"}, &buf); err == nil {
		t.Error("expected error for unknown format")
	}
	if _, err := New(Options{Level: "loud"}, &buf); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestRotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "routegrammard.log")
	rf, err := OpenRotatingFile(path, 10, 2)
	if err != nil {
		t.Fatal(err)
	}
	for _, line := range []string{"first line\n", "second line\n", "third line\n"} {
		if _, err := rf.Write([]byte(line)); err != nil {
			t.Fatal(err)
		}
	}
	if err := rf.Close(); err != nil {
		t.Fatal(err)
	}

	for name, want := range map[string]string{
		path + ".1": "third line\n",
		path + ".2": "second line\n",
		path:        "",
	} {
		data, err := os.ReadFile(name)
		if err != nil {
			t.Fatal(err)
		}
		if string(data) != want {
			t.Errorf("%s = %q, want %q", filepath.Base(name), data, want)
		}
	}
	if _, err := os.Stat(path + ".3"); !os.IsNotExist(err) {
		t.Errorf("expected no third rotation, stat err = %v", err)
	}
	if _, err := rf.Write([]byte("x")); err == nil {
		t.Error("write after close should fail")
	}
}
