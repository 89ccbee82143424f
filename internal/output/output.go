// Package output implements the Output Writer (C13): JSON, CSV, and text
// serialization of a Job batch with a timestamped filename slug and atomic
// temp-file-then-rename writes. Grounded on the teacher's
// internal/crawler/sink_fs.go write discipline, generalized here to
// os.CreateTemp + os.Rename for true atomicity across formats.
package output

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/edukz/vagas-scrapy/internal/job"
)

// Format names one of the supported output artifacts.
type Format string

// Recognized formats.
const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
	FormatText Format = "text"
)

// csvFields fixes the field order csv/text output uses, matching §3.
var csvFields = []string{
	"url", "title", "company", "location", "work_mode", "level",
	"salary_min", "salary_max", "description", "technologies", "benefits",
	"posted_at", "collected_at", "source_fingerprint",
}

// Writer writes Job batches under a base directory, one subdirectory per
// format.
type Writer struct {
	baseDir string
}

// New creates a Writer rooted at baseDir (typically resultados/).
func New(baseDir string) *Writer {
	return &Writer{baseDir: baseDir}
}

// Write emits jobs in every requested format under runSlug's filename,
// returning the paths written.
func (w *Writer) Write(runSlug string, jobs []job.Job, formats []Format) ([]string, error) {
	var paths []string
	for _, f := range formats {
		path, err := w.writeOne(runSlug, jobs, f)
		if err != nil {
			return paths, fmt.Errorf("write %s output: %w", f, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func (w *Writer) writeOne(runSlug string, jobs []job.Job, format Format) (string, error) {
	dir := filepath.Join(w.baseDir, string(format))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}

	var data []byte
	var err error
	var ext string
	switch format {
	case FormatJSON:
		data, err = encodeJSON(jobs)
		ext = "json"
	case FormatCSV:
		data, err = encodeCSV(jobs)
		ext = "csv"
	case FormatText:
		data, err = encodeText(jobs)
		ext = "txt"
	default:
		return "", fmt.Errorf("unknown output format %q", format)
	}
	if err != nil {
		return "", err
	}

	finalPath := filepath.Join(dir, runSlug+"."+ext)
	if err := atomicWrite(dir, finalPath, data); err != nil {
		return "", err
	}
	return finalPath, nil
}

func atomicWrite(dir, finalPath string, data []byte) error {
	tmp, err := os.CreateTemp(dir, "output-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp output: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp output: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp output: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp output: %w", err)
	}
	return os.Rename(tmp.Name(), finalPath)
}

func encodeJSON(jobs []job.Job) ([]byte, error) {
	data, err := json.MarshalIndent(jobs, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal jobs: %w", err)
	}
	return append(data, '\n'), nil
}

func encodeCSV(jobs []job.Job) ([]byte, error) {
	var buf strings.Builder
	w := csv.NewWriter(&buf)
	if err := w.Write(csvFields); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	for _, j := range jobs {
		if err := w.Write(csvRow(j)); err != nil {
			return nil, fmt.Errorf("write csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return []byte(buf.String()), nil
}

func csvRow(j job.Job) []string {
	return []string{
		j.URL, j.Title, j.Company, j.Location, string(j.WorkMode), string(j.Level),
		intPtrString(j.SalaryMin), intPtrString(j.SalaryMax), j.Description,
		strings.Join(j.Technologies, ";"), strings.Join(j.Benefits, ";"),
		timePtrString(j.PostedAt), j.CollectedAt.Format("2006-01-02T15:04:05Z07:00"),
		j.SourceFingerprint,
	}
}

func encodeText(jobs []job.Job) ([]byte, error) {
	var buf strings.Builder
	for i, j := range jobs {
		if i > 0 {
			buf.WriteString(strings.Repeat("-", 40) + "\n")
		}
		row := csvRow(j)
		for i, field := range csvFields {
			fmt.Fprintf(&buf, "%s: %s\n", field, row[i])
		}
	}
	return []byte(buf.String()), nil
}

func intPtrString(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

func timePtrString(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("2006-01-02T15:04:05Z07:00")
}
