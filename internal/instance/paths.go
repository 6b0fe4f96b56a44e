// Package instance locates the files of a named relay instance.
package instance

import (
	"os"
	"path/filepath"
	"sort"
)

// baseDirEnv relocates every instance, mainly for tests and containers.
const baseDirEnv = "WPPRELAY_HOME"

// BaseDir returns $WPPRELAY_HOME, or ~/.wpprelay.
func BaseDir() string {
	if dir := os.Getenv(baseDirEnv); dir != "" {
		return dir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".wpprelay")
}

// Dir returns the instance directory.
func Dir(name string) string {
	return filepath.Join(BaseDir(), "instances", name)
}

// SocketPath returns the control API socket of an instance.
func SocketPath(name string) string {
	return filepath.Join(Dir(name), "daemon.sock")
}

// LockPath returns the lock file path for an instance.
func LockPath(name string) string {
	return filepath.Join(Dir(name), "LOCK")
}

// DBPath returns the default SQLite database of an instance.
func DBPath(name string) string {
	return filepath.Join(Dir(name), "relay.db")
}

// LogDir returns the log directory for an instance.
func LogDir(name string) string {
	return filepath.Join(Dir(name), "logs")
}

// LogPath returns the daemon log file path.
func LogPath(name string) string {
	return filepath.Join(LogDir(name), "wpprelayd.log")
}

// ConfigPath returns the global config file path.
func ConfigPath() string {
	return filepath.Join(BaseDir(), "config.toml")
}

// EnsureDir creates the instance directory tree with proper permissions.
func EnsureDir(name string) error {
	for _, d := range []string{Dir(name), LogDir(name)} {
		if err := os.MkdirAll(d, 0700); err != nil {
			return err
		}
	}
	return nil
}

// Info describes an instance found on disk.
type Info struct {
	Name    string `json:"name"`
	Path    string `json:"path"`
	Running bool   `json:"running"`
}

// List returns the instances under BaseDir, sorted by name. An instance is
// reported running while its control socket exists.
func List() ([]Info, error) {
	entries, err := os.ReadDir(filepath.Join(BaseDir(), "instances"))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out []Info
	for _, e := range entries {
		if !e.IsDir() || ValidateName(e.Name()) != nil {
			continue
		}
		_, statErr := os.Stat(SocketPath(e.Name()))
		out = append(out, Info{Name: e.Name(), Path: Dir(e.Name()), Running: statErr == nil})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
