package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"golang.org/x/time/rate"

	"github.com/ethereum-optimism/infra/op-webcept/metrics"
	"github.com/ethereum-optimism/infra/op-webcept/registry"
	"github.com/ethereum-optimism/infra/op-webcept/runner"
	"github.com/ethereum-optimism/infra/op-webcept/types"
)

const (
	DefaultRunRateLimit = 1.0
	DefaultRunRateBurst = 4
)

// SiteView describes a site and its current catalog entry
type SiteView struct {
	Name     string              `json:"name"`
	Config   string              `json:"config"`
	Loaded   bool                `json:"loaded"`
	Ready    bool                `json:"ready"`
	LoadedAt *time.Time          `json:"loaded_at,omitempty"`
	Counts   map[types.Kind]int  `json:"counts,omitempty"`
	Env      map[string][]string `json:"env,omitempty"`
	Error    string              `json:"error,omitempty"`
}

// UnitView is the JSON form of a unit
type UnitView struct {
	ID       string      `json:"id"`
	Kind     types.Kind  `json:"kind"`
	Type     string      `json:"type"`
	Title    string      `json:"title"`
	Location string      `json:"location"`
	State    types.State `json:"state"`
}

// UnitsView lists the units of a site by kind and type
type UnitsView struct {
	Site  string                               `json:"site"`
	Ready bool                                 `json:"ready"`
	Tally int                                  `json:"tally"`
	Units map[types.Kind]map[string][]UnitView `json:"units"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// APIConfig holds configuration for the JSON API
type APIConfig struct {
	Catalog *registry.Catalog
	Runner  *runner.Runner
	// RunRateLimit is the sustained number of run requests per second.
	RunRateLimit float64
	RunRateBurst int
	Log          log.Logger
}

// API serves the site catalog and run requests over HTTP
type API struct {
	catalog *registry.Catalog
	runner  *runner.Runner
	limiter *rate.Limiter
	log     log.Logger
}

// NewAPI creates the API handlers
func NewAPI(cfg APIConfig) (*API, error) {
	if cfg.Catalog == nil {
		return nil, fmt.Errorf("catalog is required")
	}
	if cfg.Runner == nil {
		return nil, fmt.Errorf("runner is required")
	}
	if cfg.Log == nil {
		cfg.Log = log.New()
		cfg.Log.Error("No logger provided, using default")
	}
	if cfg.RunRateLimit <= 0 {
		cfg.RunRateLimit = DefaultRunRateLimit
	}
	if cfg.RunRateBurst <= 0 {
		cfg.RunRateBurst = DefaultRunRateBurst
	}
	return &API{
		catalog: cfg.Catalog,
		runner:  cfg.Runner,
		limiter: rate.NewLimiter(rate.Limit(cfg.RunRateLimit), cfg.RunRateBurst),
		log:     cfg.Log,
	}, nil
}

// Handler returns the routed API wrapped in CORS handling
func (a *API) Handler() http.Handler {
	r := mux.NewRouter()
	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/sites", a.handleSites).Methods(http.MethodGet)
	api.HandleFunc("/units", a.handleUnits).Methods(http.MethodGet)
	api.HandleFunc("/check", a.handleCheck).Methods(http.MethodGet)
	api.HandleFunc("/sites/{site}/reload", a.handleReload).Methods(http.MethodPost)
	api.HandleFunc("/run/test/{type}/{id}", a.limited(a.handleRun(types.KindTest))).Methods(http.MethodPost)
	api.HandleFunc("/run/module/{type}/{id}", a.limited(a.handleRun(types.KindModule))).Methods(http.MethodPost)
	api.HandleFunc("/run/group/{name}", a.limited(a.handleRun(types.KindGroup))).Methods(http.MethodPost)

	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
	})
	return c.Handler(r)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		log.Error("failed to marshal response", "error", err)
		status = http.StatusInternalServerError
		body = []byte(`{"error":"internal server error"}`)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(body); err != nil {
		log.Error("failed to send response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func siteStatus(err error) int {
	if errors.Is(err, registry.ErrUnknownSite) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

// limited rejects requests beyond the run rate limit instead of queueing them
func (a *API) limited(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !a.limiter.Allow() {
			metrics.RecordError("rate_limited")
			writeError(w, http.StatusTooManyRequests, errors.New("too many run requests"))
			return
		}
		next(w, r)
	}
}

func (a *API) handleSites(w http.ResponseWriter, r *http.Request) {
	settings := a.catalog.Settings()
	sites := make([]SiteView, 0, len(settings.Sites))
	for _, site := range settings.Sites {
		view := SiteView{Name: site.Name, Config: site.Config}
		entry, err := a.catalog.Current(site.Name)
		if err != nil {
			view.Error = err.Error()
		} else {
			loadedAt := entry.LoadedAt
			view.Loaded = true
			view.Ready = entry.Snapshot.Ready
			view.LoadedAt = &loadedAt
			view.Counts = entry.Registry.Counts()
			view.Env = entry.Snapshot.Env
		}
		sites = append(sites, view)
	}
	writeJSON(w, http.StatusOK, sites)
}

func (a *API) handleUnits(w http.ResponseWriter, r *http.Request) {
	site := a.catalog.Resolve(r.URL.Query().Get("site"))
	entry, err := a.catalog.Current(site)
	if err != nil {
		writeError(w, siteStatus(err), err)
		return
	}

	view := UnitsView{
		Site:  site,
		Ready: entry.Snapshot.Ready,
		Tally: entry.Registry.Tally(),
		Units: make(map[types.Kind]map[string][]UnitView, len(types.Kinds)),
	}
	for _, kind := range types.Kinds {
		byType := entry.Registry.Units(kind)
		views := make(map[string][]UnitView, len(byType))
		for typeName, units := range byType {
			list := make([]UnitView, 0, len(units))
			for _, u := range units {
				list = append(list, UnitView{
					ID:       u.ID,
					Kind:     u.Kind,
					Type:     u.Type,
					Title:    u.Title,
					Location: u.Location,
					State:    u.State(),
				})
			}
			views[typeName] = list
		}
		view.Units[kind] = views
	}
	writeJSON(w, http.StatusOK, view)
}

func (a *API) handleReload(w http.ResponseWriter, r *http.Request) {
	site := mux.Vars(r)["site"]
	entry, err := a.catalog.Load(site)
	if err != nil {
		a.log.Error("failed to reload site", "site", site, "error", err)
		writeError(w, siteStatus(err), err)
		return
	}
	loadedAt := entry.LoadedAt
	writeJSON(w, http.StatusOK, SiteView{
		Name:     entry.Snapshot.Site.Name,
		Config:   entry.Snapshot.Site.Config,
		Loaded:   true,
		Ready:    entry.Snapshot.Ready,
		LoadedAt: &loadedAt,
		Counts:   entry.Registry.Counts(),
		Env:      entry.Snapshot.Env,
	})
}

func (a *API) handleCheck(w http.ResponseWriter, r *http.Request) {
	site := a.catalog.Resolve(r.URL.Query().Get("site"))
	entry, err := a.catalog.Current(site)
	if err != nil {
		writeError(w, siteStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, runner.Preflight(entry.Snapshot, a.catalog.Settings().Location))
}

func (a *API) handleRun(kind types.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vars := mux.Vars(r)
		query := r.URL.Query()
		req := runner.Request{
			Site:       query.Get("site"),
			Type:       vars["type"],
			ID:         vars["id"],
			Name:       vars["name"],
			Envs:       query["env"],
			RemoteAddr: remoteHost(r.RemoteAddr),
		}

		resp := a.runner.Run(r.Context(), kind, req)
		writeJSON(w, runStatus(resp), resp)
	}
}

// runStatus maps an envelope to an HTTP status. Runs that reached the
// executor are 200 whatever their outcome, including start failures.
func runStatus(resp types.RunResponse) int {
	switch resp.MessageText() {
	case runner.MsgTestNotFound, runner.MsgModuleNotFound, runner.MsgGroupNotFound:
		return http.StatusNotFound
	case runner.MsgNotReady:
		return http.StatusServiceUnavailable
	}
	return http.StatusOK
}

func remoteHost(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}

