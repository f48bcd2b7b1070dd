package signature

import (
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/blogshield/blogshield/internal/safefile"
)

// rulesFile is the YAML shape of a custom signature rules file.
type rulesFile struct {
	Groups []struct {
		Type     string   `yaml:"type"`
		Targets  []string `yaml:"targets"`
		Header   string   `yaml:"header,omitempty"`
		Patterns []string `yaml:"patterns"`
	} `yaml:"groups"`
}

// LoadRulesFile parses a custom signature rules file into groups.
func LoadRulesFile(path string) ([]Group, error) {
	data, err := safefile.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading rules file: %w", err)
	}
	return parseRules(data)
}

// LoadRulesFS parses a rules file from an fs.FS, typically the
// embedded defaults.
func LoadRulesFS(fsys fs.FS, name string) ([]Group, error) {
	data, err := fs.ReadFile(fsys, name)
	if err != nil {
		return nil, fmt.Errorf("reading rules file: %w", err)
	}
	return parseRules(data)
}

func parseRules(data []byte) ([]Group, error) {
	var rf rulesFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("parsing rules file: %w", err)
	}
	groups := make([]Group, 0, len(rf.Groups))
	for _, g := range rf.Groups {
		parsed, err := ParseGroup(g.Type, g.Targets, g.Header, g.Patterns)
		if err != nil {
			return nil, err
		}
		groups = append(groups, parsed)
	}
	return groups, nil
}

// Watcher hot-reloads a custom rules file into a matcher.
type Watcher struct {
	watcher *fsnotify.Watcher
	done    chan struct{}
}

// WatchRules loads the rules file into the matcher, then reloads it on
// every change. A reload that fails to parse keeps the previous set.
func WatchRules(path string, m *Matcher, logger *slog.Logger) (*Watcher, error) {
	groups, err := LoadRulesFile(path)
	if err != nil {
		return nil, err
	}
	m.SetCustomGroups(groups)

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating rules watcher: %w", err)
	}
	// Watch the directory: editors replace files on save, which drops
	// a watch on the file itself.
	if err := fw.Add(filepath.Dir(path)); err != nil {
		_ = fw.Close()
		return nil, fmt.Errorf("watching rules dir: %w", err)
	}

	w := &Watcher{watcher: fw, done: make(chan struct{})}
	go func() {
		defer close(w.done)
		for {
			select {
			case ev, ok := <-fw.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != filepath.Clean(path) {
					continue
				}
				if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
					continue
				}
				groups, err := LoadRulesFile(path)
				if err != nil {
					logger.Warn("rules reload failed, keeping previous set", "path", path, "error", err)
					continue
				}
				m.SetCustomGroups(groups)
				logger.Info("custom signature rules reloaded", "path", path, "groups", len(groups))
			case err, ok := <-fw.Errors:
				if !ok {
					return
				}
				logger.Warn("rules watcher error", "error", err)
			}
		}
	}()
	return w, nil
}

// Close stops watching.
func (w *Watcher) Close() error {
	err := w.watcher.Close()
	<-w.done
	return err
}
