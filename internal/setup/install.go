package setup

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"text/template"
)

const (
	// BinaryName is the name of the installed binary.
	BinaryName = "calnotes"

	// InstallDir is the default install directory for the binary.
	InstallDir = "/usr/local/bin"

	// AgentLabel is the launchd job label.
	AgentLabel = "com.github.njoerd114.calnotes"
)

const agentTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
    <key>Label</key>
    <string>{{.Label}}</string>
    <key>ProgramArguments</key>
    <array>
        <string>{{.BinaryPath}}</string>
        <string>daemon</string>
        <string>--config</string>
        <string>{{.ConfigPath}}</string>
    </array>
    <key>RunAtLoad</key>
    <true/>
    <key>KeepAlive</key>
    <dict>
        <key>SuccessfulExit</key>
        <false/>
    </dict>
    <key>ProcessType</key>
    <string>Background</string>
    <key>StandardOutPath</key>
    <string>{{.LogDir}}/calnotes.log</string>
    <key>StandardErrorPath</key>
    <string>{{.LogDir}}/calnotes.err.log</string>
</dict>
</plist>
`

// Agent describes the per-user launchd agent that runs the sync daemon.
type Agent struct {
	HomeDir    string
	BinaryPath string
	ConfigPath string
}

// NewAgent returns the agent layout for homeDir with the binary in
// [InstallDir].
func NewAgent(homeDir, configPath string) Agent {
	return Agent{
		HomeDir:    homeDir,
		BinaryPath: filepath.Join(InstallDir, BinaryName),
		ConfigPath: configPath,
	}
}

// PlistPath returns the launchd plist destination path.
func (a Agent) PlistPath() string {
	return filepath.Join(a.HomeDir, "Library", "LaunchAgents", AgentLabel+".plist")
}

// LogDir returns the log directory path.
func (a Agent) LogDir() string {
	return filepath.Join(a.HomeDir, "Library", "Logs", BinaryName)
}

// RenderPlist returns the launchd plist for the agent.
func (a Agent) RenderPlist() ([]byte, error) {
	tmpl, err := template.New("plist").Parse(agentTemplate)
	if err != nil {
		return nil, fmt.Errorf("parsing plist template: %w", err)
	}
	data := struct {
		Label, BinaryPath, ConfigPath, LogDir string
	}{AgentLabel, a.BinaryPath, a.ConfigPath, a.LogDir()}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("executing plist template: %w", err)
	}
	return buf.Bytes(), nil
}

// Install copies the running binary into place, writes the plist, creates the
// log directory and loads the agent.
func (a Agent) Install() error {
	if err := a.installBinary(); err != nil {
		return fmt.Errorf("installing binary: %w", err)
	}
	plist, err := a.RenderPlist()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(a.PlistPath()), 0o755); err != nil {
		return fmt.Errorf("creating LaunchAgents directory: %w", err)
	}
	if err := os.WriteFile(a.PlistPath(), plist, 0o644); err != nil {
		return fmt.Errorf("writing plist to %s: %w", a.PlistPath(), err)
	}
	if err := os.MkdirAll(a.LogDir(), 0o755); err != nil {
		return fmt.Errorf("creating log directory %s: %w", a.LogDir(), err)
	}
	return a.Load()
}

// installBinary copies the currently-running binary to BinaryPath, using sudo
// when the target directory is not writable.
func (a Agent) installBinary() error {
	self, err := os.Executable()
	if err != nil {
		return fmt.Errorf("resolving current executable path: %w", err)
	}
	self, err = filepath.EvalSymlinks(self)
	if err != nil {
		return fmt.Errorf("resolving executable symlinks: %w", err)
	}
	if self == a.BinaryPath {
		return nil
	}

	dir := filepath.Dir(a.BinaryPath)
	if isWritable(dir) {
		data, err := os.ReadFile(self)
		if err != nil {
			return fmt.Errorf("reading %s: %w", self, err)
		}
		return os.WriteFile(a.BinaryPath, data, 0o755)
	}

	//nolint:gosec // sudo is intentional here, the user is prompted by macOS.
	cmd := exec.Command("sudo", "install", "-m", "755", self, a.BinaryPath)
	cmd.Stdin, cmd.Stdout, cmd.Stderr = os.Stdin, os.Stdout, os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("sudo install to %s: %w", a.BinaryPath, err)
	}
	return nil
}

// Load loads the plist so the daemon starts immediately, unloading a
// previous instance first.
func (a Agent) Load() error {
	_ = a.Unload()
	//nolint:gosec // user-controlled path
	out, err := exec.Command("launchctl", "load", a.PlistPath()).CombinedOutput()
	if err != nil {
		return fmt.Errorf("launchctl load: %s: %w", strings.TrimSpace(string(out)), err)
	}
	return nil
}

// Unload stops the daemon. A missing plist is not an error.
func (a Agent) Unload() error {
	if _, err := os.Stat(a.PlistPath()); os.IsNotExist(err) {
		return nil
	}
	//nolint:gosec // user-controlled path
	out, err := exec.Command("launchctl", "unload", a.PlistPath()).CombinedOutput()
	if err != nil {
		return fmt.Errorf("launchctl unload: %s: %w", strings.TrimSpace(string(out)), err)
	}
	return nil
}

// Uninstall unloads the agent and removes its plist and binary. With purge it
// also removes config, database and logs.
func (a Agent) Uninstall(purge bool) error {
	if err := a.Unload(); err != nil {
		return err
	}
	if err := os.Remove(a.PlistPath()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing plist %s: %w", a.PlistPath(), err)
	}
	if err := a.removeBinary(); err != nil {
		return err
	}
	if !purge {
		return nil
	}
	for _, dir := range []string{
		filepath.Join(a.HomeDir, ".config", BinaryName),
		filepath.Join(a.HomeDir, ".local", "share", BinaryName),
		a.LogDir(),
	} {
		if err := os.RemoveAll(dir); err != nil {
			return fmt.Errorf("removing %s: %w", dir, err)
		}
	}
	return nil
}

func (a Agent) removeBinary() error {
	if _, err := os.Stat(a.BinaryPath); os.IsNotExist(err) {
		return nil
	}
	if isWritable(filepath.Dir(a.BinaryPath)) {
		return os.Remove(a.BinaryPath)
	}
	//nolint:gosec // sudo is intentional
	cmd := exec.Command("sudo", "rm", "-f", a.BinaryPath)
	cmd.Stdin, cmd.Stdout, cmd.Stderr = os.Stdin, os.Stdout, os.Stderr
	return cmd.Run()
}

// IsLoaded reports whether the launchd job is currently loaded.
func (a Agent) IsLoaded() bool {
	return exec.Command("launchctl", "list", AgentLabel).Run() == nil
}

// isWritable checks if the given directory is writable by the current user.
func isWritable(dir string) bool {
	f, err := os.CreateTemp(dir, ".calnotes-probe-*")
	if err != nil {
		return false
	}
	name := f.Name()
	_ = f.Close()
	_ = os.Remove(name)
	return true
}
