// Package incremental implements the Incremental Processor (C9): durable
// seen-url/seen-fingerprint sets, per-page new/known/changed
// classification, and the early-stop policy. Grounded on
// original_source/src/scraper_optimized.py's early-stop heuristics and the
// teacher's concurrentVisitTracker (internal/crawler/politeness.go),
// generalized here to a durable, checkpointed set.
package incremental

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/edukz/vagas-scrapy/internal/job"
)

// SchemaVersion is written into every checkpoint so future format changes
// can be detected on load.
const SchemaVersion = 1

// Classification is the outcome of comparing a candidate Job against the
// seen sets.
type Classification string

// Recognized classifications.
const (
	New     Classification = "new"
	Known   Classification = "known"
	Changed Classification = "changed"
)

// Session records one run's new/known/changed tallies, appended to the
// checkpoint rather than folded into a running total, per spec.md §6's
// checkpoint JSON.
type Session struct {
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`
	New       int       `json:"new"`
	Known     int       `json:"known"`
	Changed   int       `json:"changed"`
}

// Checkpoint is the durable, atomically-persisted state.
type Checkpoint struct {
	Schema           int       `json:"schema"`
	SeenURLs         []string  `json:"seen_urls"`
	SeenFingerprints []string  `json:"seen_fingerprints"`
	Sessions         []Session `json:"sessions"`
}

// Config controls the early-stop threshold and streak length.
type Config struct {
	NewRatioThreshold float64
	StopStreak        int
	Forced            bool
}

// DefaultConfig matches spec.md §4.9's defaults.
func DefaultConfig() Config {
	return Config{NewRatioThreshold: 0.30, StopStreak: 2}
}

// Processor tracks seen URLs/fingerprints and the per-run known-streak used
// for early stop.
type Processor struct {
	cfg  Config
	path string

	mu               sync.Mutex
	seenURLs         map[string]struct{}
	seenFingerprints map[string]struct{}
	urlFingerprint   map[string]string
	sessions         []Session
	knownStreak      int

	sessionStarted time.Time
	sessionNew     int
	sessionKnown   int
	sessionChanged int
}

// Open loads the checkpoint at path, or starts fresh if it does not exist.
func Open(cfg Config, path string) (*Processor, error) {
	p := &Processor{
		cfg:              cfg,
		path:             path,
		seenURLs:         make(map[string]struct{}),
		seenFingerprints: make(map[string]struct{}),
		urlFingerprint:   make(map[string]string),
		sessionStarted:   time.Now().UTC(),
	}
	if path == "" {
		return p, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return p, nil
		}
		return nil, fmt.Errorf("read checkpoint: %w", err)
	}
	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("decode checkpoint: %w", err)
	}
	for _, u := range cp.SeenURLs {
		p.seenURLs[u] = struct{}{}
	}
	for _, f := range cp.SeenFingerprints {
		p.seenFingerprints[f] = struct{}{}
	}
	p.sessions = cp.Sessions
	return p, nil
}

// PageResult is the classification outcome for one page's candidates.
type PageResult struct {
	Classifications map[string]Classification // keyed by job URL
	NewCount        int
	KnownCount      int
	ChangedCount    int
	NewRatio        float64
	ShouldStop      bool
}

// ClassifyPage classifies each candidate against the seen sets, updates
// the sets and known-streak, and reports whether the orchestrator should
// stop paginating. A Changed classification annotates the candidate's
// PriorFingerprint in place with the fingerprint last seen for that URL,
// per spec.md §4.9's "treated as new record with a prior_key reference".
func (p *Processor) ClassifyPage(candidates []job.Job) PageResult {
	p.mu.Lock()
	defer p.mu.Unlock()

	result := PageResult{Classifications: make(map[string]Classification, len(candidates))}

	for i := range candidates {
		j := candidates[i]
		_, urlSeen := p.seenURLs[j.URL]
		_, fpSeen := p.seenFingerprints[j.SourceFingerprint]

		var class Classification
		switch {
		case !urlSeen && !fpSeen:
			class = New
			result.NewCount++
		case urlSeen && !fpSeen:
			class = Changed
			result.ChangedCount++
			candidates[i].PriorFingerprint = p.urlFingerprint[j.URL]
		default:
			class = Known
			result.KnownCount++
		}
		result.Classifications[j.URL] = class

		p.seenURLs[j.URL] = struct{}{}
		p.seenFingerprints[j.SourceFingerprint] = struct{}{}
		p.urlFingerprint[j.URL] = j.SourceFingerprint
	}

	total := len(candidates)
	if total > 0 {
		result.NewRatio = float64(result.NewCount) / float64(total)
	}

	if total > 0 && result.NewRatio < p.cfg.NewRatioThreshold {
		p.knownStreak++
	} else {
		p.knownStreak = 0
	}

	result.ShouldStop = !p.cfg.Forced && p.knownStreak >= p.cfg.StopStreak

	p.sessionNew += result.NewCount
	p.sessionKnown += result.KnownCount
	p.sessionChanged += result.ChangedCount

	return result
}

// Persist writes the checkpoint atomically, appending the current run's
// tally as a new Session rather than folding it into a running total. Once
// written, the in-memory tally resets so a later Persist call in the same
// process starts a fresh session instead of double-counting.
func (p *Processor) Persist() error {
	if p.path == "" {
		return nil
	}
	p.mu.Lock()
	session := Session{
		StartedAt: p.sessionStarted,
		EndedAt:   time.Now().UTC(),
		New:       p.sessionNew,
		Known:     p.sessionKnown,
		Changed:   p.sessionChanged,
	}
	sessions := append(append([]Session(nil), p.sessions...), session)
	cp := Checkpoint{
		Schema:           SchemaVersion,
		SeenURLs:         keysOf(p.seenURLs),
		SeenFingerprints: keysOf(p.seenFingerprints),
		Sessions:         sessions,
	}
	p.mu.Unlock()

	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(p.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create checkpoint dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "checkpoint-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp checkpoint: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp checkpoint: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp checkpoint: %w", err)
	}
	if err := os.Rename(tmp.Name(), p.path); err != nil {
		return err
	}

	p.mu.Lock()
	p.sessions = sessions
	p.sessionStarted = session.EndedAt
	p.sessionNew, p.sessionKnown, p.sessionChanged = 0, 0, 0
	p.mu.Unlock()
	return nil
}

func keysOf(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

