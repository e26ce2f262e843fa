package process

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/vburojevic/opctl/internal/platform"
)

const levelNameKey = "level-name"

func (s *Server) propertiesPath() string {
	if filepath.IsAbs(s.cfg.PropertiesFile) {
		return s.cfg.PropertiesFile
	}
	return filepath.Join(s.cfg.Dir, s.cfg.PropertiesFile)
}

func (s *Server) savesDir() string {
	switch {
	case s.cfg.SavesDir == "":
		return s.cfg.Dir
	case filepath.IsAbs(s.cfg.SavesDir):
		return s.cfg.SavesDir
	default:
		return filepath.Join(s.cfg.Dir, s.cfg.SavesDir)
	}
}

// ReadConfigurationText returns the properties file verbatim.
func (s *Server) ReadConfigurationText() (string, error) {
	b, err := os.ReadFile(s.propertiesPath())
	if err != nil {
		return "", fmt.Errorf("read properties: %w", err)
	}
	return string(b), nil
}

// WriteConfigurationText replaces the properties file. The old text survives a
// failed write.
func (s *Server) WriteConfigurationText(text string) error {
	if err := writeFileAtomic(s.propertiesPath(), []byte(text)); err != nil {
		return fmt.Errorf("write properties: %w", err)
	}
	return nil
}

func writeFileAtomic(path string, data []byte) error {
	mode := os.FileMode(0o644)
	if info, err := os.Stat(path); err == nil {
		mode = info.Mode().Perm()
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpPath, mode); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}

// FindSave resolves a world directory under the saves directory. Names that
// could escape it are never found.
func (s *Server) FindSave(name string) (platform.Save, bool) {
	if name == "" || name == "." || strings.Contains(name, "..") || strings.ContainsAny(name, `/\`) {
		return nil, false
	}
	info, err := os.Stat(filepath.Join(s.savesDir(), name))
	if err != nil || !info.IsDir() {
		return nil, false
	}
	return &save{server: s, name: name}, true
}

type save struct {
	server *Server
	name   string
}

func (w *save) Name() string { return w.name }

// Activate points level-name at this save; the server loads it on next start.
func (w *save) Activate() error {
	text, err := w.server.ReadConfigurationText()
	if err != nil {
		return err
	}
	return w.server.WriteConfigurationText(setProperty(text, levelNameKey, w.name))
}

// setProperty replaces the first assignment of key or appends one, keeping
// every other line as it was.
func setProperty(text, key, value string) string {
	lines := strings.Split(text, "\n")
	assignment := key + "=" + value

	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") || strings.HasPrefix(trimmed, "!") {
			continue
		}
		k, _, ok := strings.Cut(trimmed, "=")
		if !ok {
			k, _, ok = strings.Cut(trimmed, ":")
		}
		if ok && strings.TrimSpace(k) == key {
			lines[i] = assignment
			return strings.Join(lines, "\n")
		}
	}

	if text == "" {
		return assignment + "\n"
	}
	if strings.HasSuffix(text, "\n") {
		return text + assignment + "\n"
	}
	return text + "\n" + assignment + "\n"
}
