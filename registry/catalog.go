package registry

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"golang.org/x/sync/singleflight"

	"github.com/ethereum-optimism/infra/op-webcept/metrics"
	"github.com/ethereum-optimism/infra/op-webcept/settings"
	"github.com/ethereum-optimism/infra/op-webcept/snapshot"
)

// ErrUnknownSite is returned for site names missing from the settings
var ErrUnknownSite = errors.New("unknown site")

// Entry pairs a snapshot with the registry discovered from it
type Entry struct {
	Snapshot *snapshot.Snapshot
	Registry *Registry
	LoadedAt time.Time
}

// Catalog keeps the current entry of every configured site. Reloads build a
// fresh entry and swap it in; concurrent reloads of a site are collapsed.
type Catalog struct {
	settings *settings.Settings
	log      log.Logger
	entries  map[string]*atomic.Pointer[Entry]
	loads    singleflight.Group
}

// NewCatalog creates a catalog for the configured sites. Nothing is loaded
// until Load or Current is called.
func NewCatalog(s *settings.Settings, logger log.Logger) *Catalog {
	if logger == nil {
		logger = log.New()
		logger.Error("No logger provided, using default")
	}
	entries := make(map[string]*atomic.Pointer[Entry], len(s.Sites))
	for _, site := range s.Sites {
		entries[site.Name] = new(atomic.Pointer[Entry])
	}
	return &Catalog{
		settings: s,
		log:      logger,
		entries:  entries,
	}
}

// Settings returns the static settings the catalog was built from.
func (c *Catalog) Settings() *settings.Settings {
	return c.settings
}

// Sites returns the configured site names in configuration order.
func (c *Catalog) Sites() []string {
	return c.settings.SiteNames()
}

// Resolve maps an empty site name to the default site.
func (c *Catalog) Resolve(name string) string {
	if name == "" {
		return c.settings.DefaultSite().Name
	}
	return name
}

// Load rebuilds the entry of a site and makes it current.
func (c *Catalog) Load(name string) (*Entry, error) {
	name = c.Resolve(name)
	ptr, ok := c.entries[name]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownSite, name)
	}
	v, err, shared := c.loads.Do(name, func() (interface{}, error) {
		entry, err := c.build(name)
		if err != nil {
			return nil, err
		}
		ptr.Store(entry)
		return entry, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		c.log.Debug("Collapsed concurrent reload", "site", name)
	}
	return v.(*Entry), nil
}

// Current returns the current entry of a site, loading it on first use.
func (c *Catalog) Current(name string) (*Entry, error) {
	name = c.Resolve(name)
	ptr, ok := c.entries[name]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownSite, name)
	}
	if entry := ptr.Load(); entry != nil {
		return entry, nil
	}
	return c.Load(name)
}

// LoadAll loads every configured site, stopping at the first failure.
func (c *Catalog) LoadAll() error {
	for _, name := range c.Sites() {
		if _, err := c.Load(name); err != nil {
			return err
		}
	}
	return nil
}

func (c *Catalog) build(name string) (*Entry, error) {
	site, _ := c.settings.Site(name)
	snap, err := snapshot.Load(c.settings, site, c.log)
	if err != nil {
		metrics.RecordErrorDetails("snapshot", err)
		return nil, fmt.Errorf("failed to load snapshot for site %s: %w", name, err)
	}
	reg := Build(Config{Log: c.log}, snap)

	metrics.RecordReload(name, snap.Ready)
	metrics.RecordDiscovery(name, reg.Counts(), reg.Tally())
	c.log.Info("Site loaded", "site", name, "ready", snap.Ready, "units", reg.Counts())

	return &Entry{
		Snapshot: snap,
		Registry: reg,
		LoadedAt: time.Now(),
	}, nil
}
