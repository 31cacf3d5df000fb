// Package roster implements the character consistency store: durable
// per-scene and cross-scene character identity records, similarity-based
// identity matching, and voice-assignment resolution through the voice
// registry.
//
// The hard problem here is that a per-page analyzer may label the same real
// character differently across pages or chapters ("Hannes" on one run, "Old
// Hannes" on the next). The store converges such labels on a single voice
// handle: an exact-name match is authoritative, otherwise the best
// similarity match above [MatchThreshold] donates its voice to the new
// label. A new identity record is still created under the new label, so
// both spellings resolve from then on.
package roster

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/panelvox/panelvox/internal/classify"
	"github.com/panelvox/panelvox/internal/store"
	"github.com/panelvox/panelvox/pkg/types"
)

// Record is one durable character identity. Created on first registration,
// updated on every later scene registration, never deleted. Voice is
// immutable once set.
type Record struct {
	Name            string            `json:"name"`
	Voice           string            `json:"voice_id"`
	Category        classify.Category `json:"category"`
	Importance      string            `json:"importance"`
	Appearances     int               `json:"appearance_count"`
	Scenes          []string          `json:"scenes"`
	Pages           []int             `json:"pages"`
	DominantEmotion string            `json:"dominant_emotion"`
	GenderHint      string            `json:"gender_hint"`
	Description     string            `json:"description"`
	FirstSeen       time.Time         `json:"first_seen"`
	LastSeen        time.Time         `json:"last_seen"`
}

// SceneRecord is one processed scene: which characters spoke and which
// voices they resolved to. Immutable after creation.
type SceneRecord struct {
	ID           string            `json:"scene_id"`
	TotalPages   int               `json:"total_pages"`
	Characters   []string          `json:"characters"`
	Voices       map[string]string `json:"voice_assignments"`
	RegisteredAt time.Time         `json:"registered_at"`
}

// Snapshot is the store's complete durable state, serialized directly.
type Snapshot struct {
	// RecordOrder preserves first-encountered order for deterministic
	// similarity tie-breaking across restarts.
	RecordOrder []string               `json:"record_order"`
	Records     map[string]Record      `json:"characters"`
	SceneOrder  []string               `json:"scene_order"`
	Scenes      map[string]SceneRecord `json:"scenes"`
}

// Stats summarizes the store for reporting.
type Stats struct {
	Characters     int
	ByImportance   map[string]int
	DistinctVoices int

	// MostAppearing is the character present in the most scenes.
	MostAppearing string

	// VoiceSharing maps each voice handle to the characters bound to it.
	VoiceSharing map[string][]string
}

// Store is the character consistency store. Safe for concurrent use; each
// RegisterScene call is one atomic critical section, so no registration can
// observe a half-updated state.
type Store struct {
	log        *slog.Logger
	docs       store.DocStore
	docKey     string
	registry   voiceRegistry
	classifier classify.Classifier

	mu         sync.Mutex
	order      []string
	records    map[string]*Record
	scenes     map[string]*SceneRecord
	sceneOrder []string
}

// voiceRegistry is the registry surface the store needs.
type voiceRegistry interface {
	Assign(ctx context.Context, name string, category classify.Category, explicit string) (string, error)
}

// Option configures a Store.
type Option func(*Store)

// WithStore sets the durable backend and document key.
func WithStore(docs store.DocStore, key string) Option {
	return func(s *Store) {
		s.docs = docs
		s.docKey = key
	}
}

// WithLogger sets the logger. Defaults to slog.Default.
func WithLogger(log *slog.Logger) Option {
	return func(s *Store) {
		s.log = log
	}
}

// WithClassifier sets the category classifier. Defaults to
// [classify.KeywordClassifier].
func WithClassifier(c classify.Classifier) Option {
	return func(s *Store) {
		s.classifier = c
	}
}

// New creates a Store that resolves new voices through registry.
func New(registry voiceRegistry, opts ...Option) *Store {
	s := &Store{
		log:        slog.Default(),
		registry:   registry,
		classifier: classify.KeywordClassifier{},
		records:    make(map[string]*Record),
		scenes:     make(map[string]*SceneRecord),
	}
	for _, o := range opts {
		o(s)
	}
	s.log = s.log.With("component", "consistency-store")
	return s
}

// Load hydrates the store. A missing document is the valid first-run state.
func (s *Store) Load(ctx context.Context) error {
	if s.docs == nil {
		return nil
	}
	var snap Snapshot
	err := s.docs.Load(ctx, s.docKey, &snap)
	if errors.Is(err, store.ErrNotFound) {
		s.log.Debug("no prior consistency state, starting empty", "key", s.docKey)
		return nil
	}
	if err != nil {
		return fmt.Errorf("roster: load store: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.restore(snap)
	s.log.Info("consistency store loaded",
		"characters", len(s.records),
		"scenes", len(s.scenes),
	)
	return nil
}

// RegisterScene resolves every roster entry to a stable identity and voice,
// records the scene, and returns the scene's name→voice assignment map.
//
// The sound-effect pseudo speaker never reaches this method — the analyzer
// keeps it out of the roster — but it is filtered here as well so a drifting
// analyzer cannot register it as a character.
func (s *Store) RegisterScene(ctx context.Context, sceneID string, totalPages int, roster []types.RosterEntry) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sceneID == "" {
		return nil, fmt.Errorf("roster: sceneID must not be empty")
	}

	now := time.Now().UTC()
	assignments := make(map[string]string, len(roster))
	var names []string

	for _, entry := range roster {
		if entry.Name == "" || entry.Name == types.SoundEffectSpeaker {
			continue
		}
		voice, err := s.resolve(ctx, sceneID, entry, now)
		if err != nil {
			return nil, err
		}
		assignments[entry.Name] = voice
		names = append(names, entry.Name)
	}

	if _, ok := s.scenes[sceneID]; !ok {
		s.scenes[sceneID] = &SceneRecord{
			ID:           sceneID,
			TotalPages:   totalPages,
			Characters:   names,
			Voices:       assignments,
			RegisteredAt: now,
		}
		s.sceneOrder = append(s.sceneOrder, sceneID)
	}

	s.persist(ctx)
	s.log.Info("scene registered",
		"scene", sceneID,
		"characters", len(names),
	)
	return assignments, nil
}

// resolve finds or creates the identity record for one roster entry and
// returns its voice handle. Caller holds the lock.
func (s *Store) resolve(ctx context.Context, sceneID string, entry types.RosterEntry, now time.Time) (string, error) {
	// Exact-name match is authoritative — no similarity search for names
	// already known.
	if rec, ok := s.records[entry.Name]; ok {
		delta := len(entry.Pages)
		if delta == 0 {
			delta = 1
		}
		rec.Appearances += delta
		if !slices.Contains(rec.Scenes, sceneID) {
			rec.Scenes = append(rec.Scenes, sceneID)
		}
		rec.Pages = mergePages(rec.Pages, entry.Pages)
		if entry.DominantEmotion != "" {
			rec.DominantEmotion = entry.DominantEmotion
		}
		rec.LastSeen = now
		return rec.Voice, nil
	}

	candidate := descriptorFor(entry)
	category := classify.FromHint(entry.GenderHint, entry.Name, s.classifier)

	rec := &Record{
		Name:            entry.Name,
		Category:        category,
		Importance:      entry.Importance,
		Appearances:     candidate.Appearances,
		Scenes:          []string{sceneID},
		Pages:           slices.Clone(entry.Pages),
		DominantEmotion: entry.DominantEmotion,
		GenderHint:      entry.GenderHint,
		Description:     entry.Description,
		FirstSeen:       now,
		LastSeen:        now,
	}

	if match, score := s.bestMatch(candidate); match != nil {
		// Two labels for one real character: reuse the matched voice under
		// the new label.
		rec.Voice = match.Voice
		s.log.Info("identity converged",
			"new", entry.Name,
			"existing", match.Name,
			"score", score,
			"voice", match.Voice,
		)
	} else {
		voice, err := s.registry.Assign(ctx, entry.Name, category, "")
		if err != nil {
			return "", fmt.Errorf("roster: assign voice for %q: %w", entry.Name, err)
		}
		rec.Voice = voice
	}

	s.records[entry.Name] = rec
	s.order = append(s.order, entry.Name)
	return rec.Voice, nil
}

// bestMatch returns the highest-scoring existing record above
// [MatchThreshold], or nil. Records are scanned in first-encountered order
// and only a strictly greater score replaces the current best, which breaks
// ties deterministically.
func (s *Store) bestMatch(candidate Descriptor) (*Record, float64) {
	var (
		best      *Record
		bestScore float64
	)
	for _, name := range s.order {
		rec := s.records[name]
		score := Similarity(candidate, Descriptor{
			Name:        rec.Name,
			Importance:  rec.Importance,
			Emotion:     rec.DominantEmotion,
			Appearances: rec.Appearances,
		})
		if score > MatchThreshold && score > bestScore {
			best, bestScore = rec, score
		}
	}
	return best, bestScore
}

// VoiceFor resolves a name to a voice handle: exact identity record first,
// then the named scene's assignment map, else absent.
func (s *Store) VoiceFor(name, sceneID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec, ok := s.records[name]; ok {
		return rec.Voice, true
	}
	if sceneID != "" {
		if scene, ok := s.scenes[sceneID]; ok {
			if v, ok := scene.Voices[name]; ok {
				return v, true
			}
		}
	}
	return "", false
}

// Stats returns a point-in-time summary of the store.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Stats{
		Characters:   len(s.records),
		ByImportance: make(map[string]int),
		VoiceSharing: make(map[string][]string),
	}
	mostScenes := 0
	for _, name := range s.order {
		rec := s.records[name]
		st.ByImportance[rec.Importance]++
		st.VoiceSharing[rec.Voice] = append(st.VoiceSharing[rec.Voice], name)
		if n := len(rec.Scenes); n > mostScenes {
			mostScenes = n
			st.MostAppearing = name
		}
	}
	st.DistinctVoices = len(st.VoiceSharing)
	return st
}

// Report returns a deep copy of the full consistency state for export.
func (s *Store) Report() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot()
}

// ---- internals (callers hold the lock) ----

func descriptorFor(entry types.RosterEntry) Descriptor {
	appearances := len(entry.Pages)
	if appearances == 0 {
		appearances = 1
	}
	return Descriptor{
		Name:        entry.Name,
		Importance:  entry.Importance,
		Emotion:     entry.DominantEmotion,
		Appearances: appearances,
	}
}

func mergePages(existing, incoming []int) []int {
	for _, p := range incoming {
		if !slices.Contains(existing, p) {
			existing = append(existing, p)
		}
	}
	slices.Sort(existing)
	return existing
}

func (s *Store) snapshot() Snapshot {
	snap := Snapshot{
		RecordOrder: slices.Clone(s.order),
		Records:     make(map[string]Record, len(s.records)),
		SceneOrder:  slices.Clone(s.sceneOrder),
		Scenes:      make(map[string]SceneRecord, len(s.scenes)),
	}
	for name, rec := range s.records {
		c := *rec
		c.Scenes = slices.Clone(rec.Scenes)
		c.Pages = slices.Clone(rec.Pages)
		snap.Records[name] = c
	}
	for id, scene := range s.scenes {
		c := *scene
		c.Characters = slices.Clone(scene.Characters)
		c.Voices = make(map[string]string, len(scene.Voices))
		for n, v := range scene.Voices {
			c.Voices[n] = v
		}
		snap.Scenes[id] = c
	}
	return snap
}

func (s *Store) restore(snap Snapshot) {
	s.order = slices.Clone(snap.RecordOrder)
	s.records = make(map[string]*Record, len(snap.Records))
	for name, rec := range snap.Records {
		c := rec
		s.records[name] = &c
		if !slices.Contains(s.order, name) {
			s.order = append(s.order, name)
		}
	}
	s.sceneOrder = slices.Clone(snap.SceneOrder)
	s.scenes = make(map[string]*SceneRecord, len(snap.Scenes))
	for id, scene := range snap.Scenes {
		c := scene
		s.scenes[id] = &c
		if !slices.Contains(s.sceneOrder, id) {
			s.sceneOrder = append(s.sceneOrder, id)
		}
	}
}

// persist writes the snapshot to the durable store. Failures degrade to a
// warning; in-memory state remains the source of truth for the run.
func (s *Store) persist(ctx context.Context) {
	if s.docs == nil {
		return
	}
	if err := s.docs.Save(ctx, s.docKey, s.snapshot()); err != nil {
		s.log.Warn("consistency persistence failed, continuing in-memory",
			"key", s.docKey, "error", err)
	}
}
