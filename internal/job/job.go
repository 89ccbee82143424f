// Package job defines the Job record shared across every stage of the
// ingestion pipeline: extraction, validation, deduplication, caching, and
// output. A Job is built once by the validator and treated as immutable by
// every other component.
package job

import "time"

// WorkMode enumerates where the work is physically performed.
type WorkMode string

// Recognized work modes. Unknown covers listings where the site gave no
// usable signal.
const (
	WorkModeOnSite  WorkMode = "on-site"
	WorkModeHybrid  WorkMode = "hybrid"
	WorkModeRemote  WorkMode = "remote"
	WorkModeUnknown WorkMode = "unknown"
)

// Level enumerates seniority bands.
type Level string

// Recognized seniority levels.
const (
	LevelIntern   Level = "intern"
	LevelJunior   Level = "junior"
	LevelMid      Level = "mid"
	LevelSenior   Level = "senior"
	LevelLead     Level = "lead"
	LevelDirector Level = "director"
	LevelUnknown  Level = "unknown"
)

// Job is the primary ingested record. Field names and JSON tags mirror the
// wire format documented for the compressed cache and output writers, so no
// translation layer sits between storage and presentation.
type Job struct {
	URL                string     `json:"url"`
	Title              string     `json:"title"`
	Company            string     `json:"company"`
	Location           string     `json:"location"`
	WorkMode           WorkMode   `json:"work_mode"`
	Level              Level      `json:"level"`
	SalaryMin          *int       `json:"salary_min,omitempty"`
	SalaryMax          *int       `json:"salary_max,omitempty"`
	Description        string     `json:"description"`
	Technologies       []string   `json:"technologies"`
	Benefits           []string   `json:"benefits"`
	PostedAt           *time.Time `json:"posted_at,omitempty"`
	CollectedAt        time.Time  `json:"collected_at"`
	SourceFingerprint  string     `json:"source_fingerprint"`
	Anomalies          []string   `json:"anomalies,omitempty"`
	PriorFingerprint   string     `json:"prior_fingerprint,omitempty"`
}

// Clone returns a deep copy so callers can mutate slices without aliasing
// the original record.
func (j Job) Clone() Job {
	out := j
	out.Technologies = append([]string(nil), j.Technologies...)
	out.Benefits = append([]string(nil), j.Benefits...)
	out.Anomalies = append([]string(nil), j.Anomalies...)
	if j.SalaryMin != nil {
		v := *j.SalaryMin
		out.SalaryMin = &v
	}
	if j.SalaryMax != nil {
		v := *j.SalaryMax
		out.SalaryMax = &v
	}
	if j.PostedAt != nil {
		v := *j.PostedAt
		out.PostedAt = &v
	}
	return out
}

// HasMinimumFields checks the invariant from the data model: every Job in
// the cache has url, title, and at least one of {company, description}.
func (j Job) HasMinimumFields() bool {
	if j.URL == "" || j.Title == "" {
		return false
	}
	return j.Company != "" || j.Description != ""
}
