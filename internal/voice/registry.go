// Package voice implements the durable character-to-voice registry.
//
// A character name is bound to a synthesis-voice handle exactly once; the
// binding is idempotent and survives restarts. New bindings without an
// explicit handle draw from a categorized pool using round-robin allocation:
// the Nth automatic assignment within a category always receives
// pool[(N-1) mod len(pool)], so a replay of the assignment order reproduces
// the same handles.
package voice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/panelvox/panelvox/internal/classify"
	"github.com/panelvox/panelvox/internal/observe"
	"github.com/panelvox/panelvox/internal/store"
)

var (
	// ErrPoolEmpty reports an automatic assignment against a category whose
	// pool has no voices configured. This is a configuration error; the
	// registry never silently loops or falls back to another pool.
	ErrPoolEmpty = errors.New("voice: no voices configured for category")

	// ErrUnknownCharacter reports a reassignment for a name that was never
	// registered.
	ErrUnknownCharacter = errors.New("voice: character not registered")
)

// Assignment is one durable name→voice binding.
type Assignment struct {
	Voice     string            `json:"voice_id"`
	Category  classify.Category `json:"category"`
	Explicit  bool              `json:"explicit"`
	FirstSeen time.Time         `json:"first_seen"`
}

// Usage tracks how many characters share a voice handle.
type Usage struct {
	Count      int      `json:"count"`
	Characters []string `json:"characters"`
}

// Snapshot is the registry's complete durable state, serialized directly.
// It is also the exchange format for [Registry.Export] and [Registry.Import].
type Snapshot struct {
	Assignments map[string]Assignment     `json:"assignments"`
	Usage       map[string]Usage          `json:"voice_usage"`
	Cursors     map[classify.Category]int `json:"pool_cursors"`
}

// Stats summarizes the registry for reporting.
type Stats struct {
	Characters int
	Voices     int
	Usage      map[string]Usage
	PoolSizes  map[classify.Category]int
	Cursors    map[classify.Category]int
}

// Registry maps character names to voice handles. Safe for concurrent use.
//
// Persistence is best-effort: a failed save is logged as a warning and the
// in-memory state stays authoritative for the rest of the run.
type Registry struct {
	log        *slog.Logger
	metrics    *observe.Metrics
	docs       store.DocStore
	docKey     string
	classifier classify.Classifier
	pools      map[classify.Category][]string

	// mu guards everything below. The round-robin cursor advance and the
	// check-then-bind in Assign form one critical section.
	mu          sync.Mutex
	assignments map[string]Assignment
	usage       map[string]Usage
	cursors     map[classify.Category]int
}

// Option configures a Registry.
type Option func(*Registry)

// WithStore sets the durable backend and the document key to persist under.
func WithStore(docs store.DocStore, key string) Option {
	return func(r *Registry) {
		r.docs = docs
		r.docKey = key
	}
}

// WithLogger sets the logger. Defaults to slog.Default.
func WithLogger(log *slog.Logger) Option {
	return func(r *Registry) {
		r.log = log
	}
}

// WithClassifier sets the category classifier used when Assign is called
// without a category. Defaults to [classify.KeywordClassifier].
func WithClassifier(c classify.Classifier) Option {
	return func(r *Registry) {
		r.classifier = c
	}
}

// WithMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(r *Registry) {
		r.metrics = m
	}
}

// New creates a Registry with the given voice pools. Pools may be empty;
// assignment against an empty pool fails with [ErrPoolEmpty] at call time.
func New(pools map[classify.Category][]string, opts ...Option) *Registry {
	r := &Registry{
		log:         slog.Default(),
		classifier:  classify.KeywordClassifier{},
		pools:       make(map[classify.Category][]string, len(pools)),
		assignments: make(map[string]Assignment),
		usage:       make(map[string]Usage),
		cursors:     make(map[classify.Category]int),
	}
	for cat, pool := range pools {
		r.pools[cat] = slices.Clone(pool)
	}
	for _, o := range opts {
		o(r)
	}
	if r.metrics == nil {
		r.metrics = observe.DefaultMetrics()
	}
	r.log = r.log.With("component", "voice-registry")
	return r
}

// Load hydrates the registry from the durable store. A missing document is
// the valid first-run state, not an error.
func (r *Registry) Load(ctx context.Context) error {
	if r.docs == nil {
		return nil
	}
	var snap Snapshot
	err := r.docs.Load(ctx, r.docKey, &snap)
	if errors.Is(err, store.ErrNotFound) {
		r.log.Debug("no prior registry state, starting empty", "key", r.docKey)
		return nil
	}
	if err != nil {
		return fmt.Errorf("voice: load registry: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.restore(snap)
	r.log.Info("registry loaded",
		"characters", len(r.assignments),
		"voices", len(r.usage),
	)
	return nil
}

// Assign returns the voice handle for name, binding one first if needed.
//
// An existing binding is returned unchanged regardless of the other
// arguments. Otherwise explicit, when non-empty, is bound directly; else a
// handle is drawn round-robin from the pool for category (inferred from the
// name when category is empty). The new binding is persisted before return.
func (r *Registry) Assign(ctx context.Context, name string, category classify.Category, explicit string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if a, ok := r.assignments[name]; ok {
		return a.Voice, nil
	}

	handle := explicit
	if handle == "" {
		if category == "" {
			category = r.classifier.Categorize(name)
		}
		pool := r.pools[category]
		if len(pool) == 0 {
			return "", fmt.Errorf("%w %q", ErrPoolEmpty, category)
		}
		handle = pool[r.cursors[category]%len(pool)]
		r.cursors[category]++
	}

	r.assignments[name] = Assignment{
		Voice:     handle,
		Category:  category,
		Explicit:  explicit != "",
		FirstSeen: time.Now().UTC(),
	}
	r.addUsage(handle, name)
	r.persist(ctx)
	r.metrics.VoicesAssigned.Add(ctx, 1,
		metric.WithAttributes(observe.Attr("category", string(category))),
	)

	r.log.Info("voice assigned",
		"character", name,
		"voice", handle,
		"category", string(category),
		"explicit", explicit != "",
	)
	return handle, nil
}

// Lookup returns the handle bound to name, reporting absence distinctly.
func (r *Registry) Lookup(name string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.assignments[name]
	return a.Voice, ok
}

// Reassign overrides the binding for an already-registered name, updating
// usage counters on both the old and new handle.
func (r *Registry) Reassign(ctx context.Context, name, handle string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.assignments[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownCharacter, name)
	}
	if a.Voice == handle {
		return nil
	}

	r.removeUsage(a.Voice, name)
	a.Voice = handle
	a.Explicit = true
	r.assignments[name] = a
	r.addUsage(handle, name)
	r.persist(ctx)

	r.log.Info("voice reassigned", "character", name, "voice", handle)
	return nil
}

// Stats returns a point-in-time summary of the registry.
func (r *Registry) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	st := Stats{
		Characters: len(r.assignments),
		Voices:     len(r.usage),
		Usage:      make(map[string]Usage, len(r.usage)),
		PoolSizes:  make(map[classify.Category]int, len(r.pools)),
		Cursors:    make(map[classify.Category]int, len(r.cursors)),
	}
	for v, u := range r.usage {
		st.Usage[v] = Usage{Count: u.Count, Characters: slices.Clone(u.Characters)}
	}
	for cat, pool := range r.pools {
		st.PoolSizes[cat] = len(pool)
	}
	for cat, c := range r.cursors {
		st.Cursors[cat] = c
	}
	return st
}

// Export returns a deep copy of the registry state.
func (r *Registry) Export() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshot()
}

// Import replaces the registry state with snap and persists the result.
func (r *Registry) Import(ctx context.Context, snap Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.restore(snap)
	r.persist(ctx)
	r.log.Info("registry state imported", "characters", len(r.assignments))
}

// ---- internals (callers hold the lock) ----

func (r *Registry) addUsage(handle, name string) {
	u := r.usage[handle]
	u.Count++
	if !slices.Contains(u.Characters, name) {
		u.Characters = append(u.Characters, name)
	}
	r.usage[handle] = u
}

func (r *Registry) removeUsage(handle, name string) {
	u, ok := r.usage[handle]
	if !ok {
		return
	}
	u.Count--
	if i := slices.Index(u.Characters, name); i >= 0 {
		u.Characters = slices.Delete(u.Characters, i, i+1)
	}
	if u.Count <= 0 && len(u.Characters) == 0 {
		delete(r.usage, handle)
		return
	}
	r.usage[handle] = u
}

func (r *Registry) snapshot() Snapshot {
	snap := Snapshot{
		Assignments: make(map[string]Assignment, len(r.assignments)),
		Usage:       make(map[string]Usage, len(r.usage)),
		Cursors:     make(map[classify.Category]int, len(r.cursors)),
	}
	for n, a := range r.assignments {
		snap.Assignments[n] = a
	}
	for v, u := range r.usage {
		snap.Usage[v] = Usage{Count: u.Count, Characters: slices.Clone(u.Characters)}
	}
	for cat, c := range r.cursors {
		snap.Cursors[cat] = c
	}
	return snap
}

func (r *Registry) restore(snap Snapshot) {
	r.assignments = make(map[string]Assignment, len(snap.Assignments))
	r.usage = make(map[string]Usage, len(snap.Usage))
	r.cursors = make(map[classify.Category]int, len(snap.Cursors))
	for n, a := range snap.Assignments {
		r.assignments[n] = a
	}
	for v, u := range snap.Usage {
		r.usage[v] = Usage{Count: u.Count, Characters: slices.Clone(u.Characters)}
	}
	for cat, c := range snap.Cursors {
		r.cursors[cat] = c
	}
}

// persist writes the snapshot to the durable store. Failures degrade to a
// warning; in-memory state remains the source of truth for the run.
func (r *Registry) persist(ctx context.Context) {
	if r.docs == nil {
		return
	}
	if err := r.docs.Save(ctx, r.docKey, r.snapshot()); err != nil {
		r.log.Warn("registry persistence failed, continuing in-memory",
			"key", r.docKey, "error", err)
	}
}
