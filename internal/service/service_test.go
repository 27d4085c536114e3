package service

import (
	"os"
	"strings"
	"testing"
)

func TestWriteSystemdUnit(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path, err := Write(Systemd, Params{
		Binary: "/usr/local/bin/eventscan",
		Config: "/etc/eventscan.toml",
		Env:    map[string]string{"EVENTSCAN_DEVICE": "cpu", "EVENTSCAN_METRICS_ADDR": "127.0.0.1:9318"},
	})
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if !strings.HasSuffix(path, ".config/systemd/user/"+Label+".service") {
		t.Fatalf("path %s", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	unit := string(data)
	for _, want := range []string{
		"ExecStart=/usr/local/bin/eventscan serve --config /etc/eventscan.toml",
		"Environment=EVENTSCAN_DEVICE=cpu\nEnvironment=EVENTSCAN_METRICS_ADDR=127.0.0.1:9318",
	} {
		if !strings.Contains(unit, want) {
			t.Fatalf("unit missing %q:\n%s", want, unit)
		}
	}
}

func TestLaunchdLifecycle(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	if _, ok := Status(Launchd, Label); ok {
		t.Fatalf("plist should not exist yet")
	}
	path, err := Write(Launchd, Params{Binary: "/bin/eventscan", Config: "/c.toml", Log: "/l.log"})
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), "<string>serve</string>") || strings.Contains(string(data), "EnvironmentVariables") {
		t.Fatalf("plist:\n%s", data)
	}
	if got, ok := Status(Launchd, Label); !ok || got != path {
		t.Fatalf("status %s %v", got, ok)
	}
	if _, err := Remove(Launchd, Label); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, err := Remove(Launchd, Label); err != nil {
		t.Fatalf("second remove should be a no-op: %v", err)
	}
	if _, ok := Status(Launchd, Label); ok {
		t.Fatalf("plist should be gone")
	}
}
