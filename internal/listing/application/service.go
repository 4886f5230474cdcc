package application

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	listing "plant-console/internal/listing/domain"
	"plant-console/internal/observability/metrics"
)

var (
	// ErrSuperseded is returned by Refresh when a newer refresh of the same view
	// was issued before this one completed. Its result was dropped.
	ErrSuperseded = errors.New("listing: refresh superseded")
	ErrNoSession  = errors.New("listing: session required")
	ErrNilSource  = errors.New("listing: source is nil")

	// ErrUnauthorized is wrapped by sources when upstream rejects the caller's token.
	ErrUnauthorized = errors.New("listing: upstream rejected credentials")
)

// Caller identifies the console session a view belongs to and carries the
// upstream credentials the source needs.
type Caller struct {
	SessionID string
	Token     string
	// Scope selects the subject of a scoped screen, e.g. the user whose
	// plants are listed. Unscoped screens ignore it.
	Scope string
}

// Snapshot is one load of a screen's partitions.
type Snapshot struct {
	Partitions listing.Partitions
	// Totals are upstream-reported counts per partition, nil when not reported.
	Totals map[string]int
}

// Source loads the records of a screen from upstream.
type Source interface {
	Load(ctx context.Context, caller Caller, screen Screen) (Snapshot, error)
}

// ViewParams are the state changes requested for a view. Zero fields leave the
// state alone; they are applied as partition, facets, search, sort, page.
type ViewParams struct {
	Partition string
	Facets    map[string]string
	Query     *string
	Sort      string
	Direction string
	Toggle    bool
	Page      int
}

// ViewModel is what a list screen renders.
type ViewModel struct {
	Screen string `json:"screen"`
	Scope  string `json:"scope,omitempty"`
	listing.View
	Partitions []Partition    `json:"partitions"`
	Totals     map[string]int `json:"totals,omitempty"`
	Sortable   []string       `json:"sortable"`
	LoadedAt   *time.Time     `json:"loaded_at,omitempty"`
	Error      string         `json:"error,omitempty"`
}

type viewKey struct {
	session string
	screen  string
	scope   string
}

type view struct {
	mu       sync.Mutex
	screen   Screen
	scope    string
	ctrl     *listing.Controller
	seq      uint64
	loaded   bool
	loadedAt time.Time
	totals   map[string]int
	lastErr  error
}

// Option configures ViewService.
type Option func(*ViewService)

// WithLogger sets the service logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *ViewService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *ViewService) {
		if now != nil {
			s.now = now
		}
	}
}

// ViewService keeps one list controller per (session, screen).
type ViewService struct {
	screens map[string]Screen
	source  Source
	logger  *zap.Logger
	now     func() time.Time

	mu    sync.Mutex
	views map[viewKey]*view
}

// NewViewService constructs a view service.
func NewViewService(screens map[string]Screen, source Source, opts ...Option) (*ViewService, error) {
	if source == nil {
		return nil, ErrNilSource
	}
	if len(screens) == 0 {
		screens = DefaultScreens()
	}
	s := &ViewService{
		screens: screens,
		source:  source,
		logger:  zap.NewNop(),
		now:     time.Now,
		views:   make(map[viewKey]*view),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Screen looks up a screen definition.
func (s *ViewService) Screen(name string) (Screen, error) {
	screen, ok := s.screens[name]
	if !ok {
		return Screen{}, fmt.Errorf("%w: %q", ErrUnknownScreen, name)
	}
	return screen, nil
}

// Screens returns the screen names in sorted order.
func (s *ViewService) Screens() []string {
	names := make([]string, 0, len(s.screens))
	for name := range s.screens {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *ViewService) mount(caller Caller, name string) (*view, error) {
	if caller.SessionID == "" {
		return nil, ErrNoSession
	}
	screen, err := s.Screen(name)
	if err != nil {
		return nil, err
	}
	scope := strings.TrimSpace(caller.Scope)
	if !screen.Scoped() {
		scope = ""
	} else if scope == "" {
		return nil, fmt.Errorf("%w: screen %s needs a scope", ErrInvalidParams, name)
	}
	key := viewKey{session: caller.SessionID, screen: name, scope: scope}

	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.views[key]
	if !ok {
		v = &view{screen: screen, scope: scope, ctrl: listing.NewController(screen.Config())}
		s.views[key] = v
		metrics.SetViewsActive(len(s.views))
	}
	return v, nil
}

// Refresh reloads a view from the source. When another refresh of the same view
// starts before this one returns, this result is discarded and ErrSuperseded
// is returned. A failed load keeps the last records.
func (s *ViewService) Refresh(ctx context.Context, caller Caller, screen string) (ViewModel, error) {
	v, err := s.mount(caller, screen)
	if err != nil {
		return ViewModel{}, err
	}
	return s.refresh(ctx, caller, v)
}

func (s *ViewService) refresh(ctx context.Context, caller Caller, v *view) (ViewModel, error) {
	v.mu.Lock()
	v.seq++
	token := v.seq
	v.mu.Unlock()

	start := s.now()
	caller.Scope = v.scope
	snapshot, loadErr := s.source.Load(ctx, caller, v.screen)

	v.mu.Lock()
	defer v.mu.Unlock()
	if token != v.seq {
		metrics.ObserveViewRefresh(v.screen.Name, metrics.ResultSuperseded, s.now().Sub(start))
		s.logger.Debug("stale refresh dropped",
			zap.String("screen", v.screen.Name),
			zap.Uint64("token", token),
			zap.Uint64("latest", v.seq),
		)
		return s.model(v), ErrSuperseded
	}
	if loadErr != nil {
		metrics.ObserveViewRefresh(v.screen.Name, metrics.ResultError, s.now().Sub(start))
		v.lastErr = loadErr
		s.logger.Warn("refresh failed", zap.String("screen", v.screen.Name), zap.Error(loadErr))
		return s.model(v), loadErr
	}
	metrics.ObserveViewRefresh(v.screen.Name, metrics.ResultSuccess, s.now().Sub(start))
	v.ctrl.SetRecords(snapshot.Partitions)
	v.totals = snapshot.Totals
	v.loaded = true
	v.loadedAt = s.now().UTC()
	v.lastErr = nil
	return s.model(v), nil
}

// Apply mounts the view (loading it on first use), applies params and renders it.
func (s *ViewService) Apply(ctx context.Context, caller Caller, screen string, params ViewParams) (ViewModel, error) {
	v, err := s.mount(caller, screen)
	if err != nil {
		return ViewModel{}, err
	}

	v.mu.Lock()
	loaded := v.loaded
	v.mu.Unlock()
	if !loaded {
		if _, err := s.refresh(ctx, caller, v); errors.Is(err, ErrUnauthorized) {
			return ViewModel{}, err
		}
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if err := applyParams(v, params); err != nil {
		return ViewModel{}, err
	}
	metrics.IncViewApply(v.screen.Name)
	return s.model(v), nil
}

func applyParams(v *view, params ViewParams) error {
	var dir listing.Direction
	if params.Sort != "" && !params.Toggle && params.Direction != "" {
		var ok bool
		if dir, ok = listing.ParseDirection(params.Direction); !ok {
			return fmt.Errorf("%w: direction %q", ErrInvalidParams, params.Direction)
		}
	}
	if params.Partition != "" {
		name, err := v.screen.ResolvePartition(params.Partition)
		if err != nil {
			return err
		}
		if name != v.ctrl.State().Partition {
			v.ctrl.SelectPartition(name)
		}
	}
	for field, value := range params.Facets {
		v.ctrl.OnFacetChange(field, value)
	}
	if params.Query != nil && strings.TrimSpace(*params.Query) != v.ctrl.State().Query {
		v.ctrl.OnSearchChange(*params.Query)
	}
	if params.Sort != "" {
		switch {
		case params.Toggle:
			v.ctrl.OnSortField(params.Sort)
		case params.Direction != "":
			v.ctrl.SetSort(listing.SortSpec{Field: params.Sort, Direction: dir})
		default:
			current := v.ctrl.State().Sort
			if current.Field != params.Sort {
				v.ctrl.SetSort(listing.Toggle(current, params.Sort, v.screen.Rules))
			}
		}
	}
	if params.Page != 0 {
		v.ctrl.OnPageChange(params.Page)
	}
	return nil
}

// ErrInvalidParams marks a view request the screen cannot satisfy.
var ErrInvalidParams = errors.New("listing: invalid view params")

func (s *ViewService) model(v *view) ViewModel {
	rendered := v.ctrl.View()
	model := ViewModel{
		Screen:     v.screen.Name,
		Scope:      v.scope,
		View:       rendered,
		Partitions: v.screen.Partitions,
		Totals:     v.totals,
		Sortable:   sortable(v.screen.Rules),
	}
	if v.loaded {
		at := v.loadedAt
		model.LoadedAt = &at
	}
	if v.lastErr != nil {
		model.Error = v.lastErr.Error()
	}
	return model
}

func sortable(rules listing.Rules) []string {
	out := make([]string, 0, len(rules))
	for field := range rules {
		out = append(out, field)
	}
	sort.Strings(out)
	return out
}

// FindRecord returns a record of a mounted view by id.
func (s *ViewService) FindRecord(sessionID, screen, id string) (listing.Record, bool) {
	s.mu.Lock()
	v, ok := s.views[viewKey{session: sessionID, screen: screen}]
	s.mu.Unlock()
	if !ok {
		return nil, false
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.ctrl.Find(v.screen.IDField, id)
}

// Lookup finds a record by id in the session's mounted views of feeds, in the
// order the feeds are given.
func (s *ViewService) Lookup(sessionID string, feeds []Feed, id string) (listing.Record, bool) {
	s.mu.Lock()
	byFeed := make(map[Feed][]*view)
	for key, v := range s.views {
		if key.session == sessionID {
			byFeed[v.screen.Feed] = append(byFeed[v.screen.Feed], v)
		}
	}
	s.mu.Unlock()

	for _, feed := range feeds {
		for _, v := range byFeed[feed] {
			v.mu.Lock()
			record, ok := v.ctrl.Find(v.screen.IDField, id)
			v.mu.Unlock()
			if ok {
				return record, true
			}
		}
	}
	return nil, false
}

// PatchRecord overlays fields on the record with id in every mounted view whose
// screen reads feed. It returns how many records changed.
func (s *ViewService) PatchRecord(feeds []Feed, id string, fields map[string]any) int {
	s.mu.Lock()
	targets := make([]*view, 0, len(s.views))
	for _, v := range s.views {
		for _, feed := range feeds {
			if v.screen.Feed == feed {
				targets = append(targets, v)
				break
			}
		}
	}
	s.mu.Unlock()

	patched := 0
	for _, v := range targets {
		v.mu.Lock()
		patched += v.ctrl.Patch(v.screen.IDField, id, fields)
		v.mu.Unlock()
	}
	return patched
}

// Close unmounts every view of a session. In-flight refreshes of those views
// are superseded.
func (s *ViewService) Close(sessionID string) int {
	s.mu.Lock()
	var closed []*view
	for key, v := range s.views {
		if key.session == sessionID {
			closed = append(closed, v)
			delete(s.views, key)
		}
	}
	metrics.SetViewsActive(len(s.views))
	s.mu.Unlock()

	for _, v := range closed {
		v.mu.Lock()
		v.seq++
		v.mu.Unlock()
	}
	return len(closed)
}

// Unmount discards the session's views of a screen, every scope included.
func (s *ViewService) Unmount(sessionID, screen string) bool {
	s.mu.Lock()
	var closed []*view
	for key, v := range s.views {
		if key.session == sessionID && key.screen == screen {
			closed = append(closed, v)
			delete(s.views, key)
		}
	}
	metrics.SetViewsActive(len(s.views))
	s.mu.Unlock()

	for _, v := range closed {
		v.mu.Lock()
		v.seq++
		v.mu.Unlock()
	}
	return len(closed) > 0
}
