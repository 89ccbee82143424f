// Package validator implements the Data Validator: normalization,
// correction, anomaly detection, and schema_violation rejection for raw
// extracted fields before a Job is admitted to the pipeline. Grounded on
// original_source/src/data_validator.py for the exact normalization and
// anomaly rules, expressed in the teacher's error-wrapping idiom.
package validator

import (
	"fmt"
	"html"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/edukz/vagas-scrapy/internal/errkind"
	"github.com/edukz/vagas-scrapy/internal/hash/sha256"
	"github.com/edukz/vagas-scrapy/internal/job"
	"github.com/edukz/vagas-scrapy/internal/urlnorm"
)

// Raw is the unvalidated record handed off by the Selector Fallback stage.
type Raw struct {
	URL          string
	Title        string
	Company      string
	Location     string
	WorkMode     string
	Level        string
	Salary       string
	Description  string
	Technologies []string
	Benefits     []string
	PostedAt     *time.Time
}

// TechVocabulary is the technology-token allow-list. A hit here is trusted
// outright; anything else falls back to the "likely technology" heuristic.
var TechVocabulary = map[string]struct{}{
	"go": {}, "golang": {}, "python": {}, "java": {}, "javascript": {}, "typescript": {},
	"rust": {}, "c++": {}, "c#": {}, "ruby": {}, "php": {}, "kotlin": {}, "swift": {},
	"react": {}, "vue": {}, "angular": {}, "node": {}, "django": {}, "flask": {}, "spring": {},
	"docker": {}, "kubernetes": {}, "aws": {}, "gcp": {}, "azure": {}, "terraform": {},
	"postgresql": {}, "mysql": {}, "mongodb": {}, "redis": {}, "kafka": {}, "rabbitmq": {},
	"graphql": {}, "sql": {}, "linux": {}, "git": {}, "ci/cd": {},
}

var htmlTagPattern = regexp.MustCompile(`<[^>]*>`)
var whitespacePattern = regexp.MustCompile(`\s+`)
var digitsPattern = regexp.MustCompile(`[\d.,]+`)

// Config controls validator thresholds that vary by deployment.
type Config struct {
	MinSalary         int
	MaxSalary         int
	MinDescriptionLen int
	MaxPostedAgeYears int
}

// DefaultConfig matches spec.md §4.6's implied bounds.
func DefaultConfig() Config {
	return Config{
		MinSalary:         0,
		MaxSalary:         200_000,
		MinDescriptionLen: 80,
		MaxPostedAgeYears: 2,
	}
}

// Validator normalizes and corrects Raw records into Jobs, tracking
// per-batch salary samples for the interquartile anomaly check.
type Validator struct {
	cfg     Config
	hasher  *sha256.Hasher
	samples []int
}

// New creates a Validator.
func New(cfg Config) *Validator {
	return &Validator{cfg: cfg, hasher: sha256.New()}
}

// Result is one validated (or rejected) record plus its outcome.
type Result struct {
	Job      job.Job
	Rejected bool
	Reason   string
}

// Validate normalizes raw into a Job, computes anomalies, and rejects
// records missing a required field after correction.
func (v *Validator) Validate(raw Raw, now time.Time) Result {
	canonicalURL, err := urlnorm.Canonicalize(raw.URL)
	if err != nil {
		return Result{Rejected: true, Reason: "schema_violation"}
	}

	title := collapseWhitespace(strings.TrimSpace(raw.Title))
	company := collapseWhitespace(strings.TrimSpace(raw.Company))
	location := collapseWhitespace(strings.TrimSpace(raw.Location))
	description := collapseWhitespace(stripHTML(raw.Description))

	j := job.Job{
		URL:          canonicalURL,
		Title:        title,
		Company:      company,
		Location:     location,
		WorkMode:     normalizeWorkMode(raw.WorkMode, location),
		Level:        normalizeLevel(raw.Level),
		Description:  description,
		Technologies: normalizeTechnologies(raw.Technologies),
		Benefits:     normalizeBenefits(raw.Benefits),
		PostedAt:     raw.PostedAt,
		CollectedAt:  now,
	}

	if min, max, ok := parseSalaryRange(raw.Salary, v.cfg); ok {
		j.SalaryMin = &min
		j.SalaryMax = &max
		v.samples = append(v.samples, min, max)
	}

	j.SourceFingerprint = v.fingerprint(j)

	if !j.HasMinimumFields() {
		return Result{Rejected: true, Reason: "schema_violation"}
	}

	j.Anomalies = v.detectAnomalies(j, now)
	return Result{Job: j}
}

// fingerprint hashes the normalized tuple spec.md §3 defines, excluding
// collected_at.
func (v *Validator) fingerprint(j job.Job) string {
	techs := append([]string(nil), j.Technologies...)
	sort.Strings(techs)
	salaryMin, salaryMax := "", ""
	if j.SalaryMin != nil {
		salaryMin = strconv.Itoa(*j.SalaryMin)
	}
	if j.SalaryMax != nil {
		salaryMax = strconv.Itoa(*j.SalaryMax)
	}
	tuple := strings.Join([]string{
		strings.ToLower(j.Title),
		strings.ToLower(j.Company),
		strings.ToLower(j.Location),
		strings.Join(techs, ","),
		salaryMin,
		salaryMax,
		strings.ToLower(j.Description),
	}, "|")
	return v.hasher.HashString(tuple)
}

// detectAnomalies flags non-fatal issues without rejecting the record.
func (v *Validator) detectAnomalies(j job.Job, now time.Time) []string {
	var anomalies []string

	if j.SalaryMin != nil && v.outsideIQRFences(*j.SalaryMin) {
		anomalies = append(anomalies, "salary_outlier")
	}
	if len(j.Description) < v.cfg.MinDescriptionLen {
		anomalies = append(anomalies, "description_too_short")
	}
	if j.Company != "" && strings.EqualFold(j.Company, j.Title) {
		anomalies = append(anomalies, "company_equals_title")
	}
	if j.PostedAt != nil {
		if j.PostedAt.After(now) {
			anomalies = append(anomalies, "posted_at_future")
		} else if now.Sub(*j.PostedAt) > time.Duration(v.cfg.MaxPostedAgeYears)*365*24*time.Hour {
			anomalies = append(anomalies, "posted_at_stale")
		}
	}
	return anomalies
}

func (v *Validator) outsideIQRFences(value int) bool {
	if len(v.samples) < 4 {
		return false
	}
	sorted := append([]int(nil), v.samples...)
	sort.Ints(sorted)
	q1 := percentile(sorted, 0.25)
	q3 := percentile(sorted, 0.75)
	iqr := q3 - q1
	lower := q1 - 1.5*iqr
	upper := q3 + 1.5*iqr
	return float64(value) < lower || float64(value) > upper
}

func percentile(sorted []int, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := p * float64(len(sorted)-1)
	lo := int(idx)
	hi := lo + 1
	if hi >= len(sorted) {
		return float64(sorted[lo])
	}
	frac := idx - float64(lo)
	return float64(sorted[lo])*(1-frac) + float64(sorted[hi])*frac
}

// QualityScore computes the batch's validation.quality_score from
// rejection and anomaly counts.
func QualityScore(total, rejections, anomalousRecords int) float64 {
	if total == 0 {
		return 1
	}
	anomalyFraction := float64(anomalousRecords) / float64(total)
	score := 1 - (float64(rejections)+anomalyFraction*0.5)/float64(total)
	if score < 0 {
		score = 0
	}
	return score
}

func collapseWhitespace(s string) string {
	return whitespacePattern.ReplaceAllString(s, " ")
}

func stripHTML(s string) string {
	unescaped := html.UnescapeString(s)
	return htmlTagPattern.ReplaceAllString(unescaped, " ")
}

func normalizeWorkMode(raw, location string) job.WorkMode {
	lower := strings.ToLower(raw + " " + location)
	switch {
	case strings.Contains(lower, "remot") || strings.Contains(lower, "home office"):
		return job.WorkModeRemote
	case strings.Contains(lower, "hibrid") || strings.Contains(lower, "hybrid"):
		return job.WorkModeHybrid
	case strings.Contains(lower, "presencial") || strings.Contains(lower, "on-site") || strings.Contains(lower, "onsite"):
		return job.WorkModeOnSite
	default:
		return job.WorkModeUnknown
	}
}

func normalizeLevel(raw string) job.Level {
	lower := strings.ToLower(raw)
	switch {
	case strings.Contains(lower, "intern") || strings.Contains(lower, "estagi"):
		return job.LevelIntern
	case strings.Contains(lower, "junior") || strings.Contains(lower, "júnior"):
		return job.LevelJunior
	case strings.Contains(lower, "pleno") || strings.Contains(lower, "mid"):
		return job.LevelMid
	case strings.Contains(lower, "senior") || strings.Contains(lower, "sênior"):
		return job.LevelSenior
	case strings.Contains(lower, "lead") || strings.Contains(lower, "staff"):
		return job.LevelLead
	case strings.Contains(lower, "diretor") || strings.Contains(lower, "director") || strings.Contains(lower, "head"):
		return job.LevelDirector
	default:
		return job.LevelUnknown
	}
}

var techSeparators = regexp.MustCompile(`[,;/|]+`)

func normalizeTechnologies(raw []string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, entry := range raw {
		for _, tok := range techSeparators.Split(entry, -1) {
			tok = strings.ToLower(strings.TrimSpace(tok))
			tok = deaccent(tok)
			if tok == "" {
				continue
			}
			if !isTechToken(tok) {
				continue
			}
			if _, dup := seen[tok]; dup {
				continue
			}
			seen[tok] = struct{}{}
			out = append(out, tok)
		}
	}
	return out
}

func normalizeBenefits(raw []string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, entry := range raw {
		v := collapseWhitespace(strings.TrimSpace(entry))
		if v == "" {
			continue
		}
		key := strings.ToLower(v)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, v)
	}
	return out
}

func isTechToken(tok string) bool {
	if _, ok := TechVocabulary[tok]; ok {
		return true
	}
	if len(tok) < 2 || len(tok) > 40 {
		return false
	}
	if isPurelyNumeric(tok) {
		return false
	}
	return true
}

func isPurelyNumeric(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) && r != '.' {
			return false
		}
	}
	return true
}

func deaccent(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// parseSalaryRange extracts a monthly salary range from a raw string,
// honoring "mil"/"k" suffixes, swapping an inverted range, and bounding to
// [MinSalary, MaxSalary].
func parseSalaryRange(raw string, cfg Config) (min, max int, ok bool) {
	if strings.TrimSpace(raw) == "" {
		return 0, 0, false
	}
	lower := strings.ToLower(raw)
	matches := digitsPattern.FindAllString(lower, -1)
	if len(matches) == 0 {
		return 0, 0, false
	}

	values := make([]int, 0, len(matches))
	for _, m := range matches {
		v, err := parseSalaryToken(m, lower)
		if err != nil {
			continue
		}
		values = append(values, v)
	}
	if len(values) == 0 {
		return 0, 0, false
	}

	min, max = values[0], values[0]
	for _, v := range values[1:] {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	if min > max {
		min, max = max, min
	}
	min = clampInt(min, cfg.MinSalary, cfg.MaxSalary)
	max = clampInt(max, cfg.MinSalary, cfg.MaxSalary)
	return min, max, true
}

func parseSalaryToken(numeric, context string) (int, error) {
	cleaned := strings.ReplaceAll(numeric, ".", "")
	cleaned = strings.ReplaceAll(cleaned, ",", ".")
	value, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, fmt.Errorf("parse salary token %q: %w", numeric, err)
	}
	if strings.Contains(context, "mil") || strings.Contains(context, "k") {
		value *= 1000
	}
	return int(value), nil
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// AsRejectionError wraps a rejected Result as an errkind.Error for callers
// that need the standard error-propagation path instead of the Result
// struct.
func AsRejectionError(r Result) error {
	if !r.Rejected {
		return nil
	}
	return errkind.New(errkind.SchemaViolation, "validator.validate", fmt.Errorf("%s", r.Reason))
}
