package registry

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/ethereum-optimism/infra/op-webcept/snapshot"
	"github.com/ethereum-optimism/infra/op-webcept/types"
	"github.com/ethereum/go-ethereum/log"
)

// ErrNotFound is returned when no unit matches a lookup
var ErrNotFound = errors.New("unit not found")

// Registry holds the runnable units discovered for one configuration snapshot
type Registry struct {
	config Config
	units  map[types.Kind]map[string]*types.Unit
	tally  int
	mu     sync.RWMutex
}

// Config contains registry configuration
type Config struct {
	Log log.Logger
}

// NewRegistry creates an empty registry
func NewRegistry(cfg Config) *Registry {
	if cfg.Log == nil {
		cfg.Log = log.New()
		cfg.Log.Error("No logger provided, using default")
	}
	r := &Registry{config: cfg}
	r.reset()
	return r
}

// Build creates a registry and populates it from the snapshot
func Build(cfg Config, snap *snapshot.Snapshot) *Registry {
	r := NewRegistry(cfg)
	r.Discover(snap)
	return r
}

func (r *Registry) reset() {
	r.units = make(map[types.Kind]map[string]*types.Unit, len(types.Kinds))
	for _, kind := range types.Kinds {
		r.units[kind] = make(map[string]*types.Unit)
	}
}

// Register inserts a unit, replacing any unit with the same kind, type and ID.
func (r *Registry) Register(u *types.Unit) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.units[u.Kind][u.Key()] = u
}

// Lookup returns the unit of the given kind, type and ID.
func (r *Registry) Lookup(kind types.Kind, unitType, id string) (*types.Unit, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.units[kind][unitType+"/"+id]
	return u, ok
}

// Group returns the group unit with the given name.
func (r *Registry) Group(name string) (*types.Unit, bool) {
	return r.Lookup(types.KindGroup, types.GroupType, types.Identity(name))
}

// Find is Lookup with an ErrNotFound error when nothing matches.
func (r *Registry) Find(kind types.Kind, unitType, id string) (*types.Unit, error) {
	u, ok := r.Lookup(kind, unitType, id)
	if !ok {
		return nil, fmt.Errorf("%w: %s %s/%s", ErrNotFound, kind, unitType, id)
	}
	return u, nil
}

// Units returns the units of a kind grouped by type, each list ordered by
// location.
func (r *Registry) Units(kind types.Kind) map[string][]*types.Unit {
	r.mu.RLock()
	defer r.mu.RUnlock()

	byType := make(map[string][]*types.Unit)
	for _, u := range r.units[kind] {
		byType[u.Type] = append(byType[u.Type], u)
	}
	for _, list := range byType {
		sort.Slice(list, func(i, j int) bool { return list[i].Location < list[j].Location })
	}
	return byType
}

// Tally returns how many units have been instantiated by discovery.
func (r *Registry) Tally() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tally
}

// Counts returns the number of registered units per kind.
func (r *Registry) Counts() map[types.Kind]int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	counts := make(map[types.Kind]int, len(types.Kinds))
	for _, kind := range types.Kinds {
		counts[kind] = len(r.units[kind])
	}
	return counts
}

// Discover populates the registry from a snapshot. A snapshot that is not
// ready yields no units. Calling it again with the same snapshot yields the
// same units; the tally keeps counting.
func (r *Registry) Discover(snap *snapshot.Snapshot) {
	if !snap.Ready {
		r.config.Log.Warn("Skipping discovery, codeception config not loaded", "site", snap.Site.Name)
		return
	}
	for _, testType := range snap.ActiveTypes() {
		for _, root := range snap.TestRoots {
			r.discoverTests(snap, testType, filepath.Join(root, testType))
		}
	}

	names := make([]string, 0, len(snap.Modules))
	for name := range snap.Modules {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		r.instantiate(types.NewModule(name, snap.Modules[name]))
	}

	for _, name := range snap.Groups {
		r.instantiate(types.NewGroup(name))
	}

	r.config.Log.Debug("Registry discovered units", "site", snap.Site.Name, "counts", r.Counts(), "tally", r.Tally())
}

func (r *Registry) instantiate(u *types.Unit) {
	r.mu.Lock()
	r.tally++
	r.mu.Unlock()
	r.Register(u)
}

// discoverTests walks the resolved type directory but records paths under dir,
// so a symlinked type directory still yields identities of the joined paths.
func (r *Registry) discoverTests(snap *snapshot.Snapshot, testType, dir string) {
	root := dir
	if resolved, err := filepath.EvalSymlinks(dir); err == nil {
		root = resolved
	}
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			r.config.Log.Debug("Skipping unreadable path", "path", path, "err", err)
			return nil
		}
		if d.IsDir() || snap.Ignored(d.Name()) {
			return nil
		}
		if !isRegular(path, d) {
			return nil
		}
		if root != dir {
			rel, err := filepath.Rel(root, path)
			if err != nil {
				return nil
			}
			path = filepath.Join(dir, rel)
		}
		r.instantiate(types.NewTest(testType, path))
		return nil
	})
	if err != nil {
		r.config.Log.Debug("Test discovery stopped", "dir", dir, "err", err)
	}
}

// isRegular reports whether path is a regular file, following symlinks.
func isRegular(path string, d fs.DirEntry) bool {
	if d.Type().IsRegular() {
		return true
	}
	if d.Type()&fs.ModeSymlink == 0 {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
