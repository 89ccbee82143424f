package validator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edukz/vagas-scrapy/internal/job"
)

func longDescription() string {
	return "We are looking for an experienced backend engineer to join our platform team " +
		"working on distributed systems, message queues, and public APIs used by thousands."
}

func TestValidateAcceptsWellFormedRecord(t *testing.T) {
	v := New(DefaultConfig())
	now := time.Now().UTC()
	raw := Raw{
		URL:          "http://Example.com/jobs/42?utm_source=x",
		Title:        "  Backend  Engineer ",
		Company:      "Acme Corp",
		Location:     "São Paulo, remoto",
		Level:        "Sênior",
		Salary:       "R$ 8.000 - 12.000",
		Description:  "<p>" + longDescription() + "</p>",
		Technologies: []string{"Go, Python", "AWS"},
		Benefits:     []string{"Health plan", "health plan "},
	}

	result := v.Validate(raw, now)
	require.False(t, result.Rejected)
	j := result.Job

	assert.Equal(t, "https://example.com/jobs/42", j.URL)
	assert.Equal(t, "Backend Engineer", j.Title)
	assert.Equal(t, job.LevelSenior, j.Level)
	assert.Equal(t, job.WorkModeRemote, j.WorkMode)
	require.NotNil(t, j.SalaryMin)
	require.NotNil(t, j.SalaryMax)
	assert.Equal(t, 8000, *j.SalaryMin)
	assert.Equal(t, 12000, *j.SalaryMax)
	assert.Contains(t, j.Technologies, "go")
	assert.Contains(t, j.Technologies, "python")
	assert.Contains(t, j.Technologies, "aws")
	assert.Len(t, j.Benefits, 1)
	assert.NotEmpty(t, j.SourceFingerprint)
}

func TestValidateRejectsMissingTitle(t *testing.T) {
	v := New(DefaultConfig())
	raw := Raw{URL: "https://example.com/jobs/1", Company: "Acme"}
	result := v.Validate(raw, time.Now().UTC())
	assert.True(t, result.Rejected)
	assert.Equal(t, "schema_violation", result.Reason)
}

func TestValidateRejectsInvalidURL(t *testing.T) {
	v := New(DefaultConfig())
	raw := Raw{URL: "not a url", Title: "Engineer", Company: "Acme"}
	result := v.Validate(raw, time.Now().UTC())
	assert.True(t, result.Rejected)
}

func TestValidateFlagsShortDescriptionAnomaly(t *testing.T) {
	v := New(DefaultConfig())
	raw := Raw{URL: "https://example.com/jobs/1", Title: "Engineer", Company: "Acme", Description: "too short"}
	result := v.Validate(raw, time.Now().UTC())
	require.False(t, result.Rejected)
	assert.Contains(t, result.Job.Anomalies, "description_too_short")
}

func TestValidateFlagsCompanyEqualsTitle(t *testing.T) {
	v := New(DefaultConfig())
	raw := Raw{URL: "https://example.com/jobs/1", Title: "Acme", Company: "acme", Description: longDescription()}
	result := v.Validate(raw, time.Now().UTC())
	require.False(t, result.Rejected)
	assert.Contains(t, result.Job.Anomalies, "company_equals_title")
}

func TestValidateFlagsFuturePostedAt(t *testing.T) {
	v := New(DefaultConfig())
	future := time.Now().UTC().Add(48 * time.Hour)
	raw := Raw{
		URL: "https://example.com/jobs/1", Title: "Engineer", Company: "Acme",
		Description: longDescription(), PostedAt: &future,
	}
	result := v.Validate(raw, time.Now().UTC())
	require.False(t, result.Rejected)
	assert.Contains(t, result.Job.Anomalies, "posted_at_future")
}

func TestValidateSwapsInvertedSalaryRange(t *testing.T) {
	v := New(DefaultConfig())
	raw := Raw{
		URL: "https://example.com/jobs/1", Title: "Engineer", Company: "Acme",
		Description: longDescription(), Salary: "12000 a 8000",
	}
	result := v.Validate(raw, time.Now().UTC())
	require.False(t, result.Rejected)
	require.NotNil(t, result.Job.SalaryMin)
	require.NotNil(t, result.Job.SalaryMax)
	assert.Equal(t, 8000, *result.Job.SalaryMin)
	assert.Equal(t, 12000, *result.Job.SalaryMax)
}

func TestValidateParsesKSalarySuffix(t *testing.T) {
	v := New(DefaultConfig())
	raw := Raw{
		URL: "https://example.com/jobs/1", Title: "Engineer", Company: "Acme",
		Description: longDescription(), Salary: "8k - 10k",
	}
	result := v.Validate(raw, time.Now().UTC())
	require.False(t, result.Rejected)
	require.NotNil(t, result.Job.SalaryMin)
	assert.Equal(t, 8000, *result.Job.SalaryMin)
	assert.Equal(t, 10000, *result.Job.SalaryMax)
}

func TestValidateFingerprintStableAcrossFieldOrderInsensitiveCasing(t *testing.T) {
	v := New(DefaultConfig())
	now := time.Now().UTC()
	raw1 := Raw{URL: "https://example.com/jobs/1", Title: "Engineer", Company: "Acme", Description: longDescription()}
	raw2 := Raw{URL: "https://example.com/jobs/1", Title: "ENGINEER", Company: "acme", Description: longDescription()}
	r1 := v.Validate(raw1, now)
	r2 := v.Validate(raw2, now)
	assert.Equal(t, r1.Job.SourceFingerprint, r2.Job.SourceFingerprint)
}

func TestQualityScoreIsOneWhenBatchEmpty(t *testing.T) {
	assert.Equal(t, 1.0, QualityScore(0, 0, 0))
}

func TestQualityScorePenalizesRejectionsAndAnomalies(t *testing.T) {
	score := QualityScore(10, 2, 4)
	assert.Less(t, score, 1.0)
	assert.GreaterOrEqual(t, score, 0.0)
}

func TestOutsideIQRFencesFlagsExtremeSalary(t *testing.T) {
	v := New(DefaultConfig())
	now := time.Now().UTC()
	base := []string{"5000", "5200", "5300", "5400", "5500"}
	for _, s := range base {
		raw := Raw{URL: "https://example.com/jobs/" + s, Title: "Engineer", Company: "Acme",
			Description: longDescription(), Salary: s}
		v.Validate(raw, now)
	}
	raw := Raw{
		URL: "https://example.com/jobs/outlier", Title: "Engineer", Company: "Acme",
		Description: longDescription(), Salary: "500000",
	}
	result := v.Validate(raw, now)
	require.False(t, result.Rejected)
	assert.Contains(t, result.Job.Anomalies, "salary_outlier")
}
