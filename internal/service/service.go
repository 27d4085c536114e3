// Package service writes user-level service definitions that keep the
// detection daemon running: a launchd plist on macOS, a systemd unit elsewhere.
package service

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"text/template"
)

// Label identifies the service to launchd and names the systemd unit.
const Label = "com.eventscan.daemon"

// Kind selects the service manager.
type Kind string

const (
	Launchd Kind = "launchd"
	Systemd Kind = "systemd"
)

const launchdTemplate = `<?xml version='1.0' encoding='UTF-8'?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
  <key>Label</key><string>{{.Label}}</string>
  <key>ProgramArguments</key>
  <array>
    <string>{{.Binary}}</string>
    <string>serve</string>
    <string>--config</string>
    <string>{{.Config}}</string>
  </array>
  <key>RunAtLoad</key><true/>
  <key>KeepAlive</key><dict><key>SuccessfulExit</key><false/></dict>
  <key>StandardOutPath</key><string>{{.Log}}</string>
  <key>StandardErrorPath</key><string>{{.Log}}</string>
  {{- if .Env }}
  <key>EnvironmentVariables</key>
  <dict>
    {{- range .Env }}
    <key>{{.Key}}</key><string>{{.Value}}</string>
    {{- end }}
  </dict>
  {{- end }}
</dict>
</plist>
`

const systemdTemplate = `[Unit]
Description=eventscan audio event detection daemon
After=network.target

[Service]
Type=simple
ExecStart={{.Binary}} serve --config {{.Config}}
Restart=on-failure
{{- range .Env }}
Environment={{.Key}}={{.Value}}
{{- end }}

[Install]
WantedBy=default.target
`

// Params fill the service templates.
type Params struct {
	Label  string
	Binary string
	Config string
	Log    string
	Env    map[string]string
}

type envPair struct{ Key, Value string }

type templateData struct {
	Params
	Env []envPair
}

// DefaultKind returns the service manager for the running OS.
func DefaultKind() Kind {
	if runtime.GOOS == "darwin" {
		return Launchd
	}
	return Systemd
}

// Path returns where the definition for label lives.
func Path(kind Kind, label string) string {
	home, _ := os.UserHomeDir()
	if kind == Launchd {
		return filepath.Join(home, "Library", "LaunchAgents", label+".plist")
	}
	return filepath.Join(home, ".config", "systemd", "user", label+".service")
}

// Write renders the definition for kind and returns its path.
func Write(kind Kind, params Params) (string, error) {
	if params.Label == "" {
		params.Label = Label
	}
	src := systemdTemplate
	if kind == Launchd {
		src = launchdTemplate
	}
	tpl := template.Must(template.New(string(kind)).Parse(src))

	path := Path(kind, params.Label)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	if err := tpl.Execute(f, templateData{Params: params, Env: sortedEnv(params.Env)}); err != nil {
		return "", fmt.Errorf("render %s: %w", kind, err)
	}
	return path, f.Close()
}

// Remove deletes the definition for label. A missing file is not an error.
func Remove(kind Kind, label string) (string, error) {
	path := Path(kind, label)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return path, err
	}
	return path, nil
}

// Status returns the definition path and whether it exists.
func Status(kind Kind, label string) (string, bool) {
	path := Path(kind, label)
	_, err := os.Stat(path)
	return path, err == nil
}

func sortedEnv(env map[string]string) []envPair {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]envPair, len(keys))
	for i, k := range keys {
		out[i] = envPair{Key: k, Value: env[k]}
	}
	return out
}
