package config

import (
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"gopkg.in/yaml.v3"
)

// DefaultSessionCachePath is the project-relative path used when no
// override is given.
const DefaultSessionCachePath = ".ensemble/sessions.yaml"

type sessionCacheDoc struct {
	Sessions map[string]string `yaml:"sessions"`
	Inputs   []string          `yaml:"inputs,omitempty"`
}

// SessionCache treats its backing YAML file as a snapshot: it is loaded
// into an in-memory map at process start, mutated only in memory during a
// run, and persisted once the run returns (spec.md §9: "load into an
// in-memory map at run start, mutate only in memory during the run,
// persist on successful completion"). A project-scoped advisory lock
// guards concurrent runs; a missing lock is not an error (first-writer
// wins), matching the same design note.
type SessionCache struct {
	path string
	lock *flock.Flock

	Sessions map[string]string
	Inputs   []string
}

// LoadSessionCache loads path (creating an empty cache if it does not
// exist yet) and acquires an advisory lock for the duration of the
// caller's run.
func LoadSessionCache(path string) (*SessionCache, error) {
	if path == "" {
		path = DefaultSessionCachePath
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	lock := flock.New(path + ".lock")
	// A failed or unavailable lock is not fatal: first-writer-wins is
	// acceptable per the design note above.
	_, _ = lock.TryLock()

	c := &SessionCache{path: path, lock: lock, Sessions: make(map[string]string)}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return c, nil
		}
		return nil, err
	}

	var doc sessionCacheDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if doc.Sessions != nil {
		c.Sessions = doc.Sessions
	}
	c.Inputs = doc.Inputs
	return c, nil
}

// Save persists the in-memory map back to disk and releases the advisory
// lock. Called once the engine's Run returns, whether completed or
// aborted.
func (c *SessionCache) Save() error {
	defer func() {
		if c.lock != nil {
			_ = c.lock.Unlock()
		}
	}()

	doc := sessionCacheDoc{Sessions: c.Sessions, Inputs: c.Inputs}
	data, err := yaml.Marshal(doc)
	if err != nil {
		return err
	}
	return os.WriteFile(c.path, data, 0o644)
}
