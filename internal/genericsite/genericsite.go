// Package genericsite is the default Orchestrator Extractor: a
// configurable, CSS/XPath-driven adapter that reads job listing rows and
// pagination links via the Selector Fallback chain (internal/selector).
// It is deliberately generic — the concrete selectors for one target site
// are supplied through Config rather than hard-coded, since a specific
// site's markup is a deployment concern, not a pipeline one.
package genericsite

import (
	"strings"

	"github.com/edukz/vagas-scrapy/internal/selector"
	"github.com/edukz/vagas-scrapy/internal/validator"
)

// Config lists the per-field strategy chains a deployment supplies for one
// target site, plus the container selector used to enumerate job rows.
type Config struct {
	RowContainer []selector.Strategy
	Fields       map[string][]selector.Strategy
	NextPage     []selector.Strategy
}

// FieldKeys names the Raw struct fields genericsite knows how to populate
// from a Field's Chain result.
const (
	FieldURL          = "url"
	FieldTitle        = "title"
	FieldCompany      = "company"
	FieldLocation     = "location"
	FieldWorkMode     = "work_mode"
	FieldLevel        = "level"
	FieldSalary       = "salary"
	FieldDescription  = "description"
	FieldTechnologies = "technologies"
	FieldBenefits     = "benefits"
)

// Extractor implements orchestrator.Extractor using a single Chain shared
// across pages so strategy scores accumulate for the life of a run.
type Extractor struct {
	chain        *selector.Chain
	rowContainer []selector.Strategy
	nextPage     []selector.Strategy
}

// New builds an Extractor from cfg whose scoreboard persists at scorePath
// (empty to disable persistence). When cfg.RowContainer is empty, ExtractJobs
// treats the whole page as a single row, matching sites that list one
// posting per page.
func New(cfg Config, scorePath string) (*Extractor, error) {
	fields := make([]selector.Field, 0, len(cfg.Fields))
	for _, name := range fieldOrder {
		if strategies, ok := cfg.Fields[name]; ok {
			fields = append(fields, selector.Field{Name: name, Strategies: strategies})
		}
	}
	chain, err := selector.NewChain(fields, scorePath)
	if err != nil {
		return nil, err
	}
	return &Extractor{chain: chain, rowContainer: cfg.RowContainer, nextPage: cfg.NextPage}, nil
}

// fieldOrder fixes the iteration order over cfg.Fields so Chain field
// registration is deterministic across runs.
var fieldOrder = []string{
	FieldURL, FieldTitle, FieldCompany, FieldLocation, FieldWorkMode,
	FieldLevel, FieldSalary, FieldDescription, FieldTechnologies, FieldBenefits,
}

// ExtractJobs enumerates every row matched by the configured row-container
// strategy (or the whole page, if none is configured) and runs the field
// chain against each row's own sub-document.
func (e *Extractor) ExtractJobs(doc *selector.Document) ([]validator.Raw, error) {
	rows := []*selector.Document{doc}
	for _, s := range e.rowContainer {
		if found := doc.Rows(s); len(found) > 0 {
			rows = found
			break
		}
	}

	out := make([]validator.Raw, 0, len(rows))
	for _, row := range rows {
		raw := e.extractRow(row)
		if raw.URL == "" && raw.Title == "" {
			continue
		}
		out = append(out, raw)
	}
	return out, nil
}

func (e *Extractor) extractRow(doc *selector.Document) validator.Raw {
	raw := validator.Raw{
		URL:         e.chain.Extract(doc, FieldURL).Value,
		Title:       e.chain.Extract(doc, FieldTitle).Value,
		Company:     e.chain.Extract(doc, FieldCompany).Value,
		Location:    e.chain.Extract(doc, FieldLocation).Value,
		WorkMode:    e.chain.Extract(doc, FieldWorkMode).Value,
		Level:       e.chain.Extract(doc, FieldLevel).Value,
		Salary:      e.chain.Extract(doc, FieldSalary).Value,
		Description: e.chain.Extract(doc, FieldDescription).Value,
	}
	if techs := e.chain.Extract(doc, FieldTechnologies); techs.Found {
		raw.Technologies = strings.Split(techs.Value, ",")
	}
	if benefits := e.chain.Extract(doc, FieldBenefits); benefits.Found {
		raw.Benefits = strings.Split(benefits.Value, ",")
	}
	return raw
}

// NextPageURL evaluates the pagination strategy list in order, returning
// the first strategy's hit.
func (e *Extractor) NextPageURL(doc *selector.Document, currentURL string, pageNum int) (string, bool) {
	for _, s := range e.nextPage {
		if value, found := doc.Eval(s); found {
			return value, true
		}
	}
	return "", false
}

// PersistScores flushes the strategy scoreboard, typically called once at
// the end of a run.
func (e *Extractor) PersistScores() error {
	return e.chain.Persist()
}
