package selector

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const listingHTML = `
<html><body>
<div class="job-row">
  <a class="job-title" href="/jobs/1">Backend Engineer</a>
  <span class="company">Acme</span>
</div>
<div class="job-row">
  <a class="job-title" href="/jobs/2">Frontend Engineer</a>
  <span class="company">Globex</span>
</div>
<a class="next-page" href="/jobs?page=2">Next</a>
</body></html>`

func TestParseAndEvalCSS(t *testing.T) {
	doc, err := Parse(listingHTML)
	require.NoError(t, err)

	value, found := doc.Eval(Strategy{Engine: EngineCSS, Query: ".job-title"})
	require.True(t, found)
	assert.Equal(t, "Backend Engineer", value)
}

func TestParseAndEvalXPath(t *testing.T) {
	doc, err := Parse(listingHTML)
	require.NoError(t, err)

	value, found := doc.Eval(Strategy{Engine: EngineXPath, Query: "//a[@class='job-title']"})
	require.True(t, found)
	assert.Equal(t, "Backend Engineer", value)
}

func TestEvalReadsAttribute(t *testing.T) {
	doc, err := Parse(listingHTML)
	require.NoError(t, err)

	value, found := doc.Eval(Strategy{Engine: EngineCSS, Query: ".job-title", Attr: "href"})
	require.True(t, found)
	assert.Equal(t, "/jobs/1", value)
}

func TestEvalMissingSelectorNotFound(t *testing.T) {
	doc, err := Parse(listingHTML)
	require.NoError(t, err)
	_, found := doc.Eval(Strategy{Engine: EngineCSS, Query: ".does-not-exist"})
	assert.False(t, found)
}

func TestRowsSplitsRepeatedContainer(t *testing.T) {
	doc, err := Parse(listingHTML)
	require.NoError(t, err)

	rows := doc.Rows(Strategy{Engine: EngineCSS, Query: ".job-row"})
	require.Len(t, rows, 2)

	title0, _ := rows[0].Eval(Strategy{Engine: EngineCSS, Query: ".job-title"})
	title1, _ := rows[1].Eval(Strategy{Engine: EngineCSS, Query: ".job-title"})
	assert.Equal(t, "Backend Engineer", title0)
	assert.Equal(t, "Frontend Engineer", title1)
}

func TestChainExtractFallsBackPastFailingStrategy(t *testing.T) {
	fields := []Field{
		{Name: "title", Strategies: []Strategy{
			{Name: "wrong-css", Engine: EngineCSS, Query: ".does-not-exist"},
			{Name: "right-css", Engine: EngineCSS, Query: ".job-title"},
		}},
	}
	chain, err := NewChain(fields, "")
	require.NoError(t, err)

	doc, err := Parse(listingHTML)
	require.NoError(t, err)

	result := chain.Extract(doc, "title")
	require.True(t, result.Found)
	assert.Equal(t, "right-css", result.StrategyUsed)
}

func TestChainExtractReordersAfterRepeatedFailures(t *testing.T) {
	fields := []Field{
		{Name: "title", Strategies: []Strategy{
			{Name: "flaky", Engine: EngineCSS, Query: ".does-not-exist"},
			{Name: "reliable", Engine: EngineCSS, Query: ".job-title"},
		}},
	}
	chain, err := NewChain(fields, "")
	require.NoError(t, err)
	doc, err := Parse(listingHTML)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		chain.Extract(doc, "title")
	}

	ordered := chain.orderedStrategies(chain.fields["title"])
	assert.Equal(t, "reliable", ordered[0].Name)
}

func TestChainPersistAndReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scores.json")

	fields := []Field{
		{Name: "title", Strategies: []Strategy{
			{Name: "css", Engine: EngineCSS, Query: ".job-title"},
		}},
	}
	chain, err := NewChain(fields, path)
	require.NoError(t, err)
	doc, err := Parse(listingHTML)
	require.NoError(t, err)
	chain.Extract(doc, "title")
	require.NoError(t, chain.Persist())

	_, err = os.Stat(path)
	require.NoError(t, err)

	reloaded, err := NewChain(fields, path)
	require.NoError(t, err)
	assert.Equal(t, 1, reloaded.scores[scoreKey("title", "css")].Successes)
}

func TestChainExtractUnknownFieldReturnsNotFound(t *testing.T) {
	chain, err := NewChain(nil, "")
	require.NoError(t, err)
	doc, err := Parse(listingHTML)
	require.NoError(t, err)
	result := chain.Extract(doc, "missing")
	assert.False(t, result.Found)
}
