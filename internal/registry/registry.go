// Package registry keeps the catalog of configured engines: where their
// binaries live and how to launch them. The catalog is a small TOML file,
// editable by hand or through the engines subcommand.
package registry

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/fianchetto/kibitz/internal/engine"
)

// DefaultFile is the catalog file name under the kibitz home directory.
const DefaultFile = "engines.toml"

// DefaultPath returns the conventional catalog location,
// ~/.kibitz/engines.toml, falling back to a relative path when the home
// directory is unknown.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".kibitz", DefaultFile)
	}
	return filepath.Join(home, ".kibitz", DefaultFile)
}

// Profile describes one configured engine.
type Profile struct {
	Name         string   `toml:"name"`
	Path         string   `toml:"path"`
	Args         []string `toml:"args,omitempty"`
	HashMB       int      `toml:"hash_mb,omitempty"`
	Threads      int      `toml:"threads,omitempty"`
	DefaultDepth int      `toml:"default_depth,omitempty"`
	DefaultLines int      `toml:"default_lines,omitempty"`
}

// SessionConfig translates the profile into launch configuration.
func (p Profile) SessionConfig() engine.SessionConfig {
	return engine.SessionConfig{
		Binary:  p.Path,
		Args:    p.Args,
		Name:    p.Name,
		HashMB:  p.HashMB,
		Threads: p.Threads,
	}
}

// Catalog is the set of known engine profiles.
type Catalog struct {
	Profiles []Profile `toml:"engines"`
}

// Find returns the profile with the given name.
func (c *Catalog) Find(name string) (Profile, bool) {
	for _, p := range c.Profiles {
		if p.Name == name {
			return p, true
		}
	}
	return Profile{}, false
}

// Put inserts a profile, replacing any existing one with the same name.
// It reports whether a profile was replaced.
func (c *Catalog) Put(p Profile) bool {
	for i := range c.Profiles {
		if c.Profiles[i].Name == p.Name {
			c.Profiles[i] = p
			return true
		}
	}
	c.Profiles = append(c.Profiles, p)
	return false
}

// Load reads the catalog from the given path. If the file does not exist,
// it returns an empty catalog and no error, allowing callers to proceed.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Catalog{}, nil
		}
		return nil, fmt.Errorf("reading engine catalog: %w", err)
	}

	var c Catalog
	if err := toml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parsing engine catalog: %w", err)
	}
	return &c, nil
}

// Save writes the catalog to the given path, creating parent directories
// as needed.
func Save(path string, c *Catalog) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating directory %s: %w", dir, err)
	}

	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling engine catalog: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing engine catalog: %w", err)
	}
	return nil
}

// Probe launches the profile's engine just long enough to complete a
// handshake, returning the identity it reports.
func Probe(ctx context.Context, p Profile) (engine.Ident, error) {
	s := engine.NewSession(p.SessionConfig())
	if err := s.Start(ctx); err != nil {
		return engine.Ident{}, err
	}
	ident := s.Ident()
	s.Shutdown()
	return ident, nil
}
