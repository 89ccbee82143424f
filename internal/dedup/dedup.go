// Package dedup implements the Deduplicator (C10): four-level detection
// (URL, fingerprint, title+company pair, fuzzy title) plus bulk file
// cleaning. Grounded on original_source/tests/test_deduplication.py for
// the four detection levels and the teacher's internal/hash/sha256 for the
// fingerprint comparisons that feed level 2.
package dedup

import (
	"container/list"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/edukz/vagas-scrapy/internal/job"
)

// Config controls fuzzy-match sensitivity and the LRU bound.
type Config struct {
	SimilarityThreshold float64
	CompanyOverlapMin   float64
	RecentTitlesLimit   int
}

// DefaultConfig matches spec.md §4.10's defaults.
func DefaultConfig() Config {
	return Config{SimilarityThreshold: 0.85, CompanyOverlapMin: 0.5, RecentTitlesLimit: 500}
}

// Reason names which detection level matched.
type Reason string

// Recognized reasons.
const (
	ReasonURL         Reason = "url"
	ReasonFingerprint Reason = "fingerprint"
	ReasonTitleCompany Reason = "title_company"
	ReasonFuzzyTitle  Reason = "fuzzy_title"
)

type recentTitle struct {
	title   string
	company string
}

// Deduplicator holds the run-local, in-memory dedup state: the
// three exact-match sets plus a bounded LRU of recent titles for fuzzy
// comparison.
type Deduplicator struct {
	cfg Config

	urls          map[string]struct{}
	fingerprints  map[string]struct{}
	titleCompany  map[string]struct{}

	lru      *list.List
	lruIndex map[*list.Element]struct{}
}

// New creates an empty Deduplicator.
func New(cfg Config) *Deduplicator {
	if cfg.RecentTitlesLimit <= 0 {
		cfg.RecentTitlesLimit = 500
	}
	return &Deduplicator{
		cfg:          cfg,
		urls:         make(map[string]struct{}),
		fingerprints: make(map[string]struct{}),
		titleCompany: make(map[string]struct{}),
		lru:          list.New(),
		lruIndex:     make(map[*list.Element]struct{}),
	}
}

// Outcome is one job's dedup verdict.
type Outcome struct {
	Job        job.Job
	Duplicate  bool
	Reason     Reason
}

// Dedupe evaluates jobs in order, returning the unique subset, the
// duplicate subset, and each duplicate's matched reason.
func (d *Deduplicator) Dedupe(jobs []job.Job) (unique, duplicates []job.Job, reasons []Reason) {
	for _, j := range jobs {
		if reason, dup := d.check(j); dup {
			duplicates = append(duplicates, j)
			reasons = append(reasons, reason)
			continue
		}
		d.admit(j)
		unique = append(unique, j)
	}
	return unique, duplicates, reasons
}

func (d *Deduplicator) check(j job.Job) (Reason, bool) {
	if _, ok := d.urls[j.URL]; ok {
		return ReasonURL, true
	}
	if _, ok := d.fingerprints[j.SourceFingerprint]; ok {
		return ReasonFingerprint, true
	}
	tcKey := titleCompanyKey(j.Title, j.Company)
	if _, ok := d.titleCompany[tcKey]; ok {
		return ReasonTitleCompany, true
	}
	if d.fuzzyMatch(j) {
		return ReasonFuzzyTitle, true
	}
	return "", false
}

func (d *Deduplicator) fuzzyMatch(j job.Job) bool {
	normalizedTitle := strings.ToLower(strings.TrimSpace(j.Title))
	for e := d.lru.Front(); e != nil; e = e.Next() {
		rt := e.Value.(recentTitle)
		if levenshteinSimilarity(normalizedTitle, rt.title) < d.cfg.SimilarityThreshold {
			continue
		}
		if companyTokenOverlap(j.Company, rt.company) >= d.cfg.CompanyOverlapMin {
			return true
		}
	}
	return false
}

func (d *Deduplicator) admit(j job.Job) {
	d.urls[j.URL] = struct{}{}
	d.fingerprints[j.SourceFingerprint] = struct{}{}
	d.titleCompany[titleCompanyKey(j.Title, j.Company)] = struct{}{}

	d.lru.PushBack(recentTitle{
		title:   strings.ToLower(strings.TrimSpace(j.Title)),
		company: j.Company,
	})
	if d.lru.Len() > d.cfg.RecentTitlesLimit {
		d.lru.Remove(d.lru.Front())
	}
}

func titleCompanyKey(title, company string) string {
	return strings.ToLower(strings.TrimSpace(title)) + "\x00" + strings.ToLower(strings.TrimSpace(company))
}

func companyTokenOverlap(a, b string) float64 {
	tokensA := tokenSet(a)
	tokensB := tokenSet(b)
	if len(tokensA) == 0 || len(tokensB) == 0 {
		return 0
	}
	shared := 0
	for t := range tokensA {
		if _, ok := tokensB[t]; ok {
			shared++
		}
	}
	smaller := len(tokensA)
	if len(tokensB) < smaller {
		smaller = len(tokensB)
	}
	return float64(shared) / float64(smaller)
}

func tokenSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, tok := range strings.Fields(strings.ToLower(s)) {
		set[tok] = struct{}{}
	}
	return set
}

// CleanReport summarizes a bulk clean_file run.
type CleanReport struct {
	TotalRead  int
	Unique     int
	Duplicates int
	ByReason   map[Reason]int
	BackupPath string
}

// CleanFile loads a JSON array of Jobs from path, dedupes them against a
// fresh Deduplicator, creates a .bak sibling of the original, and
// overwrites path with the unique subset.
func CleanFile(cfg Config, path string) (CleanReport, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return CleanReport{}, fmt.Errorf("read file to clean: %w", err)
	}
	var jobs []job.Job
	if err := json.Unmarshal(raw, &jobs); err != nil {
		return CleanReport{}, fmt.Errorf("decode jobs to clean: %w", err)
	}

	backupPath := path + ".bak"
	if err := os.WriteFile(backupPath, raw, 0o644); err != nil {
		return CleanReport{}, fmt.Errorf("write backup: %w", err)
	}

	d := New(cfg)
	unique, duplicates, reasons := d.Dedupe(jobs)

	out, err := json.MarshalIndent(unique, "", "  ")
	if err != nil {
		return CleanReport{}, fmt.Errorf("marshal cleaned jobs: %w", err)
	}
	out = append(out, '\n')
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return CleanReport{}, fmt.Errorf("write cleaned file: %w", err)
	}

	byReason := make(map[Reason]int, len(reasons))
	for _, r := range reasons {
		byReason[r]++
	}

	return CleanReport{
		TotalRead:  len(jobs),
		Unique:     len(unique),
		Duplicates: len(duplicates),
		ByReason:   byReason,
		BackupPath: backupPath,
	}, nil
}
