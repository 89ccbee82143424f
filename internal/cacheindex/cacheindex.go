// Package cacheindex implements the Cache Index (C8): inverted indices over
// cache blobs plus multi-facet search, backed by an atomically-persisted
// JSON document. Grounded on original_source/src/cache_index.py for the
// inverted-index shape (by_date/by_company/by_tech/by_location) and on the
// teacher's atomic-rename write discipline (internal/storage/local/blob_store.go).
package cacheindex

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/edukz/vagas-scrapy/internal/cache"
)

// Entry is one per CacheBlob, matching spec.md §3's IndexEntry.
type Entry struct {
	CacheKey         string    `json:"cache_key"`
	FilePath         string    `json:"file_path"`
	SourceURL        string    `json:"source_url"`
	CapturedAt       time.Time `json:"captured_at"`
	UncompressedSize int64     `json:"uncompressed_size"`
	CompressedSize   int64     `json:"compressed_size"`
	CompressionRatio float64   `json:"compression_ratio"`
	JobCount         int       `json:"job_count"`
	Companies        []string  `json:"companies"`
	Technologies     []string  `json:"technologies"`
	Locations        []string  `json:"locations"`
	Levels           []string  `json:"levels"`
}

// document is the on-disk JSON shape: the primary entries keyed by
// cache_key, plus the four inverted indices, each mapping a date, company,
// technology, or location value to the cache_keys that carry it.
type document struct {
	Entries      map[string]Entry  `json:"entries"`
	ByDate       map[string][]string `json:"by_date"`
	ByCompany    map[string][]string `json:"by_company"`
	ByTech       map[string][]string `json:"by_tech"`
	ByLocation   map[string][]string `json:"by_location"`
}

func newDocument() *document {
	return &document{
		Entries:    make(map[string]Entry),
		ByDate:     make(map[string][]string),
		ByCompany:  make(map[string][]string),
		ByTech:     make(map[string][]string),
		ByLocation: make(map[string][]string),
	}
}

// Index wraps the Cache with search over the inverted indices. A single
// writer mutex guards mutation; it is a plain sync.Mutex and is not
// reentrant. Readers see a consistent copy-on-write snapshot via pointer
// swap.
type Index struct {
	path string

	mu  sync.Mutex // serializes writers
	doc *document  // swapped atomically under rmu
	rmu sync.RWMutex
}

// Open loads the index from path, or starts empty if the file is missing.
func Open(path string) (*Index, error) {
	idx := &Index{path: path, doc: newDocument()}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return idx, nil
		}
		return nil, fmt.Errorf("read cache index: %w", err)
	}
	doc := newDocument()
	if err := json.Unmarshal(data, doc); err != nil {
		return nil, fmt.Errorf("decode cache index: %w", err)
	}
	idx.doc = doc
	return idx, nil
}

// RebuildIfDiverged compares the index's entry count against the blob
// count on disk; if they diverge (or the index is empty and blobs exist),
// it rebuilds from scratch by scanning blobs, using loadEntry to recompute
// each blob's facets. Rebuild is idempotent.
func (idx *Index) RebuildIfDiverged(c *cache.Cache, loadEntry func(cacheKey string) (Entry, error)) error {
	keys, err := c.Keys()
	if err != nil {
		return fmt.Errorf("list cache keys: %w", err)
	}

	idx.rmu.RLock()
	current := len(idx.doc.Entries)
	idx.rmu.RUnlock()

	if current == len(keys) && current > 0 {
		return nil
	}

	fresh := newDocument()
	for _, key := range keys {
		entry, err := loadEntry(key)
		if err != nil {
			continue
		}
		addEntry(fresh, entry)
	}

	idx.mu.Lock()
	idx.rmu.Lock()
	idx.doc = fresh
	idx.rmu.Unlock()
	idx.mu.Unlock()

	return idx.persist()
}

// Put adds entry to the primary map and every inverted index, then
// persists atomically.
func (idx *Index) Put(entry Entry) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.rmu.RLock()
	next := cloneDocument(idx.doc)
	idx.rmu.RUnlock()

	addEntry(next, entry)

	idx.rmu.Lock()
	idx.doc = next
	idx.rmu.Unlock()

	return idx.persist()
}

// Remove deletes an entry (used by prune) and persists.
func (idx *Index) Remove(cacheKey string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.rmu.RLock()
	next := cloneDocument(idx.doc)
	idx.rmu.RUnlock()

	if entry, ok := next.Entries[cacheKey]; ok {
		removeEntry(next, entry)
	}
	delete(next.Entries, cacheKey)

	idx.rmu.Lock()
	idx.doc = next
	idx.rmu.Unlock()

	return idx.persist()
}

func addEntry(doc *document, entry Entry) {
	doc.Entries[entry.CacheKey] = entry
	dateKey := entry.CapturedAt.Format("2006-01-02")
	appendUnique(doc.ByDate, dateKey, entry.CacheKey)
	for _, c := range entry.Companies {
		appendUnique(doc.ByCompany, strings.ToLower(c), entry.CacheKey)
	}
	for _, t := range entry.Technologies {
		appendUnique(doc.ByTech, strings.ToLower(t), entry.CacheKey)
	}
	for _, l := range entry.Locations {
		appendUnique(doc.ByLocation, strings.ToLower(l), entry.CacheKey)
	}
}

func removeEntry(doc *document, entry Entry) {
	dateKey := entry.CapturedAt.Format("2006-01-02")
	removeValue(doc.ByDate, dateKey, entry.CacheKey)
	for _, c := range entry.Companies {
		removeValue(doc.ByCompany, strings.ToLower(c), entry.CacheKey)
	}
	for _, t := range entry.Technologies {
		removeValue(doc.ByTech, strings.ToLower(t), entry.CacheKey)
	}
	for _, l := range entry.Locations {
		removeValue(doc.ByLocation, strings.ToLower(l), entry.CacheKey)
	}
}

func appendUnique(m map[string][]string, key, value string) {
	for _, v := range m[key] {
		if v == value {
			return
		}
	}
	m[key] = append(m[key], value)
}

func removeValue(m map[string][]string, key, value string) {
	values := m[key]
	for i, v := range values {
		if v == value {
			m[key] = append(values[:i], values[i+1:]...)
			break
		}
	}
	if len(m[key]) == 0 {
		delete(m, key)
	}
}

func cloneDocument(doc *document) *document {
	next := newDocument()
	for k, v := range doc.Entries {
		next.Entries[k] = v
	}
	cloneSetMap(doc.ByDate, next.ByDate)
	cloneSetMap(doc.ByCompany, next.ByCompany)
	cloneSetMap(doc.ByTech, next.ByTech)
	cloneSetMap(doc.ByLocation, next.ByLocation)
	return next
}

func cloneSetMap(src, dst map[string][]string) {
	for k, v := range src {
		dst[k] = append([]string(nil), v...)
	}
}

func (idx *Index) persist() error {
	idx.rmu.RLock()
	data, err := json.MarshalIndent(idx.doc, "", "  ")
	idx.rmu.RUnlock()
	if err != nil {
		return fmt.Errorf("marshal cache index: %w", err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(idx.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "cache_index-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp index: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp index: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp index: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp index: %w", err)
	}
	if err := os.Rename(tmp.Name(), idx.path); err != nil {
		return fmt.Errorf("rename index into place: %w", err)
	}
	return nil
}

// Criteria is a multi-facet search filter: values within a facet combine
// with OR, facets combine with AND.
type Criteria struct {
	Companies     []string
	Technologies  []string
	Locations     []string
	Levels        []string
	MinJobs       int
	DateFrom      *time.Time
	DateTo        *time.Time
}

// Search returns matching entries sorted by captured_at descending. It
// never touches blob files.
func (idx *Index) Search(criteria Criteria) []Entry {
	idx.rmu.RLock()
	doc := idx.doc
	idx.rmu.RUnlock()

	candidateSets := make([]map[string]struct{}, 0, 4)
	if len(criteria.Companies) > 0 {
		candidateSets = append(candidateSets, unionKeys(doc.ByCompany, criteria.Companies))
	}
	if len(criteria.Technologies) > 0 {
		candidateSets = append(candidateSets, unionKeys(doc.ByTech, criteria.Technologies))
	}
	if len(criteria.Locations) > 0 {
		candidateSets = append(candidateSets, unionKeys(doc.ByLocation, criteria.Locations))
	}

	var keys map[string]struct{}
	if len(candidateSets) == 0 {
		keys = make(map[string]struct{}, len(doc.Entries))
		for k := range doc.Entries {
			keys[k] = struct{}{}
		}
	} else {
		keys = candidateSets[0]
		for _, set := range candidateSets[1:] {
			keys = intersect(keys, set)
		}
	}

	var results []Entry
	for key := range keys {
		entry, ok := doc.Entries[key]
		if !ok {
			continue
		}
		if !matchesRemainingCriteria(entry, criteria) {
			continue
		}
		results = append(results, entry)
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].CapturedAt.After(results[j].CapturedAt)
	})
	return results
}

func matchesRemainingCriteria(entry Entry, criteria Criteria) bool {
	if len(criteria.Levels) > 0 && !anyMatch(entry.Levels, criteria.Levels) {
		return false
	}
	if criteria.MinJobs > 0 && entry.JobCount < criteria.MinJobs {
		return false
	}
	if criteria.DateFrom != nil && entry.CapturedAt.Before(*criteria.DateFrom) {
		return false
	}
	if criteria.DateTo != nil && entry.CapturedAt.After(*criteria.DateTo) {
		return false
	}
	return true
}

func anyMatch(values, wanted []string) bool {
	for _, v := range values {
		for _, w := range wanted {
			if strings.EqualFold(v, w) {
				return true
			}
		}
	}
	return false
}

func unionKeys(index map[string][]string, wanted []string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range wanted {
		for _, key := range index[strings.ToLower(w)] {
			set[key] = struct{}{}
		}
	}
	return set
}

func intersect(a, b map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{})
	for k := range a {
		if _, ok := b[k]; ok {
			out[k] = struct{}{}
		}
	}
	return out
}

// TopCompanies aggregates job counts by company across all entries, ties
// broken lexically.
func (idx *Index) TopCompanies(k int) []Aggregate {
	idx.rmu.RLock()
	doc := idx.doc
	idx.rmu.RUnlock()
	return topFacet(doc.Entries, func(e Entry) []string { return e.Companies }, k)
}

// TopTechnologies aggregates job counts by technology across all entries.
func (idx *Index) TopTechnologies(k int) []Aggregate {
	idx.rmu.RLock()
	doc := idx.doc
	idx.rmu.RUnlock()
	return topFacet(doc.Entries, func(e Entry) []string { return e.Technologies }, k)
}

// Aggregate is one facet value's job count.
type Aggregate struct {
	Value string
	Count int
}

func topFacet(entries map[string]Entry, pick func(Entry) []string, k int) []Aggregate {
	counts := make(map[string]int)
	for _, e := range entries {
		for _, v := range pick(e) {
			counts[strings.ToLower(v)] += e.JobCount
		}
	}
	aggregates := make([]Aggregate, 0, len(counts))
	for v, c := range counts {
		aggregates = append(aggregates, Aggregate{Value: v, Count: c})
	}
	sort.Slice(aggregates, func(i, j int) bool {
		if aggregates[i].Count != aggregates[j].Count {
			return aggregates[i].Count > aggregates[j].Count
		}
		return aggregates[i].Value < aggregates[j].Value
	})
	if k > 0 && len(aggregates) > k {
		aggregates = aggregates[:k]
	}
	return aggregates
}
