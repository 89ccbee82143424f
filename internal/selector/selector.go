// Package selector implements the selector-fallback extraction mechanism:
// each field has an ordered list of independent locator strategies drawn
// from two query engines, scored adaptively, and persisted across runs.
// Grounded on the teacher's internal/crawler/detector_heuristic.go
// (goquery document parsing, ordered check functions) generalized into a
// per-field strategy list spanning both goquery (CSS) and
// antchfx/htmlquery+xpath.
package selector

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"
)

// Engine names the query engine a Strategy uses, kept only for logging and
// score persistence keys.
type Engine string

// Recognized engines.
const (
	EngineCSS   Engine = "css"
	EngineXPath Engine = "xpath"
)

// Strategy is one named locator for a field: an engine plus the
// query string it evaluates against a parsed document.
type Strategy struct {
	Name   string
	Engine Engine
	Query  string
	// Attr, if set, reads this attribute instead of the element's text.
	Attr string
}

// Document wraps both parse trees a document needs, built once per page so
// every field's strategy list can reuse it without re-parsing.
type Document struct {
	goq  *goquery.Document
	root *html.Node
}

// Parse builds a Document from raw page HTML.
func Parse(rawHTML string) (*Document, error) {
	goq, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return nil, fmt.Errorf("parse html for goquery: %w", err)
	}
	root, err := htmlquery.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return nil, fmt.Errorf("parse html for xpath: %w", err)
	}
	return &Document{goq: goq, root: root}, nil
}

// Eval runs one strategy against the document directly, bypassing the
// scored Chain — used for one-off lookups like pagination-link detection
// that don't need cross-run adaptive scoring.
func (d *Document) Eval(s Strategy) (string, bool) {
	return d.eval(s)
}

// eval runs one strategy against the document, returning the extracted
// text (or attribute value) and whether it produced anything non-empty.
func (d *Document) eval(s Strategy) (string, bool) {
	switch s.Engine {
	case EngineXPath:
		node := htmlquery.FindOne(d.root, s.Query)
		if node == nil {
			return "", false
		}
		var value string
		if s.Attr != "" {
			value = htmlquery.SelectAttr(node, s.Attr)
		} else {
			value = htmlquery.InnerText(node)
		}
		value = strings.TrimSpace(value)
		return value, value != ""
	default:
		sel := d.goq.Find(s.Query).First()
		if sel.Length() == 0 {
			return "", false
		}
		var value string
		if s.Attr != "" {
			value, _ = sel.Attr(s.Attr)
		} else {
			value = sel.Text()
		}
		value = strings.TrimSpace(value)
		return value, value != ""
	}
}

// Rows finds every node matching the row-container strategy and returns one
// sub-Document per match, each independently parsed so field strategies can
// run against a single row exactly as they would against a whole page. This
// is how ExtractJobs supports the common case of one page listing many job
// postings under a repeated container element.
func (d *Document) Rows(s Strategy) []*Document {
	var outer []string
	switch s.Engine {
	case EngineXPath:
		nodes := htmlquery.Find(d.root, s.Query)
		for _, n := range nodes {
			outer = append(outer, htmlquery.OutputHTML(n, true))
		}
	default:
		d.goq.Find(s.Query).Each(func(_ int, sel *goquery.Selection) {
			if html, err := goquery.OuterHtml(sel); err == nil {
				outer = append(outer, html)
			}
		})
	}
	rows := make([]*Document, 0, len(outer))
	for _, h := range outer {
		row, err := Parse(h)
		if err != nil {
			continue
		}
		rows = append(rows, row)
	}
	return rows
}

// score tracks a strategy's historical hit rate, persisted across runs so
// later crawls try the most reliable strategies first.
type score struct {
	Successes int `json:"successes"`
	Failures  int `json:"failures"`
}

func (s score) value() float64 {
	return float64(s.Successes+1) / float64(s.Successes+s.Failures+2)
}

// Field bundles the ordered strategies for one extracted field with their
// adaptive scores.
type Field struct {
	Name       string
	Strategies []Strategy
}

// Chain holds every field's strategy list plus the scoreboard shared across
// a crawl run, persisted to <index_dir>/selector_scores.json.
type Chain struct {
	mu     sync.Mutex
	fields map[string]*Field
	scores map[string]score // key: field.strategy_name
	path   string
}

// NewChain creates a Chain for the given fields with scores loaded from
// path if present.
func NewChain(fields []Field, path string) (*Chain, error) {
	c := &Chain{
		fields: make(map[string]*Field, len(fields)),
		scores: make(map[string]score),
		path:   path,
	}
	for i := range fields {
		f := fields[i]
		c.fields[f.Name] = &f
	}
	if path == "" {
		return c, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return c, nil
		}
		return nil, fmt.Errorf("read selector scores: %w", err)
	}
	if err := json.Unmarshal(data, &c.scores); err != nil {
		return nil, fmt.Errorf("decode selector scores: %w", err)
	}
	return c, nil
}

// Result is the outcome of running one field's strategy chain.
type Result struct {
	Field        string
	Value        string
	StrategyUsed string
	Found        bool
}

// Extract runs field's strategies in score-descending order against doc,
// stopping at the first non-empty result, and updates that strategy's
// score (and every strategy that was tried and failed).
func (c *Chain) Extract(doc *Document, fieldName string) Result {
	c.mu.Lock()
	field, ok := c.fields[fieldName]
	if !ok {
		c.mu.Unlock()
		return Result{Field: fieldName}
	}
	ordered := c.orderedStrategies(field)
	c.mu.Unlock()

	for _, s := range ordered {
		value, found := doc.eval(s)
		c.record(fieldName, s.Name, found)
		if found {
			return Result{Field: fieldName, Value: value, StrategyUsed: s.Name, Found: true}
		}
	}
	return Result{Field: fieldName}
}

func (c *Chain) orderedStrategies(field *Field) []Strategy {
	strategies := append([]Strategy(nil), field.Strategies...)
	scoreOf := func(s Strategy) float64 {
		return c.scores[scoreKey(field.Name, s.Name)].value()
	}
	for i := 1; i < len(strategies); i++ {
		j := i
		for j > 0 && scoreOf(strategies[j-1]) < scoreOf(strategies[j]) {
			strategies[j-1], strategies[j] = strategies[j], strategies[j-1]
			j--
		}
	}
	return strategies
}

func (c *Chain) record(fieldName, strategyName string, success bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := scoreKey(fieldName, strategyName)
	s := c.scores[key]
	if success {
		s.Successes++
	} else {
		s.Failures++
	}
	c.scores[key] = s
}

// Persist writes the scoreboard to the Chain's configured path atomically.
func (c *Chain) Persist() error {
	if c.path == "" {
		return nil
	}
	c.mu.Lock()
	data, err := json.MarshalIndent(c.scores, "", "  ")
	c.mu.Unlock()
	if err != nil {
		return fmt.Errorf("marshal selector scores: %w", err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(c.path)
	tmp, err := os.CreateTemp(dir, "selector_scores-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp selector scores: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp selector scores: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp selector scores: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp selector scores: %w", err)
	}
	if err := os.Rename(tmp.Name(), c.path); err != nil {
		return fmt.Errorf("rename selector scores into place: %w", err)
	}
	return nil
}

func scoreKey(field, strategy string) string {
	return field + "." + strategy
}
