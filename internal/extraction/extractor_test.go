package extraction

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"positioning-lab/internal/domain"
	"positioning-lab/internal/openrouter"
)

// fakeLLM answers by the image's data URL so concurrent calls stay deterministic.
type fakeLLM struct {
	mu      sync.Mutex
	replies map[string]string // data URL -> reply
	fail    map[string]error
	models  []string
}

func (f *fakeLLM) Complete(_ context.Context, req openrouter.Request) (string, error) {
	f.mu.Lock()
	f.models = append(f.models, req.Model)
	f.mu.Unlock()

	url := req.Messages[1].Parts[1].ImageURL.URL
	if err := f.fail[url]; err != nil {
		return "", err
	}
	return f.replies[url], nil
}

var models = []string{"mistralai/mistral-small-3.2-24b-instruct:free", "google/gemma-3-27b:free"}

func TestExtractor_Statuses(t *testing.T) {
	good := Upload{Filename: "good.png", Data: []byte("g")}
	partial := Upload{Filename: "partial.jpg", Data: []byte("p")}
	failing := Upload{Filename: "fail.jpeg", Data: []byte("f")}
	bad := Upload{Filename: "doc.pdf", Data: []byte("d")}

	llm := &fakeLLM{
		replies: map[string]string{
			openrouter.DataURL("image/png", good.Data):     "```csv\nName,Qty\nA,1\nB,2\n```",
			openrouter.DataURL("image/jpeg", partial.Data): "a,b\n1,2,3\n",
		},
		fail: map[string]error{
			openrouter.DataURL("image/jpeg", failing.Data): errors.New("upstream 502"),
		},
	}
	ex := NewExtractor(llm, models, zerolog.Nop())

	results, err := ex.Extract(context.Background(), "", []Upload{good, partial, failing, bad})
	require.NoError(t, err)
	require.Len(t, results, 4)

	assert.Equal(t, "good.png", results[0].Filename)
	assert.Equal(t, domain.ExtractionSuccess, results[0].Status)
	assert.Equal(t, "Extracted 2 rows", results[0].Message)
	assert.Equal(t, []string{"Name", "Qty"}, results[0].Table.Header)

	assert.Equal(t, domain.ExtractionPartial, results[1].Status)
	assert.True(t, strings.HasPrefix(results[1].Message, "Extracted but couldn't parse CSV: "))
	assert.Equal(t, "a,b\n1,2,3", results[1].RawCSV)

	assert.Equal(t, domain.ExtractionError, results[2].Status)
	assert.Equal(t, "upstream 502", results[2].Message)

	assert.Equal(t, domain.ExtractionError, results[3].Status)
	assert.Contains(t, results[3].Message, "unsupported file type")

	for _, m := range llm.models {
		assert.Equal(t, models[0], m)
	}
	assert.Len(t, llm.models, 3)
}

func TestExtractor_ModelValidation(t *testing.T) {
	ex := NewExtractor(&fakeLLM{}, models, zerolog.Nop())

	_, err := ex.Extract(context.Background(), "other/model", []Upload{{Filename: "a.png"}})
	assert.ErrorIs(t, err, ErrUnknownModel)

	_, err = ex.Extract(context.Background(), models[1], nil)
	assert.ErrorIs(t, err, ErrNoFiles)

	m, err := ex.ResolveModel(models[1])
	require.NoError(t, err)
	assert.Equal(t, models[1], m)
	assert.Equal(t, models[0], ex.DefaultModel())
}

func TestStripFences(t *testing.T) {
	cases := map[string]string{
		"a,b\n1,2":               "a,b\n1,2",
		"  ```\na,b\n1,2\n```  ": "a,b\n1,2",
		"```csv\na,b\n```":       "a,b",
		"```":                    "",
		"\n\nx,y\n":              "x,y",
	}
	for in, want := range cases {
		assert.Equal(t, want, StripFences(in), "input %q", in)
	}
}

func TestParseTable(t *testing.T) {
	table, err := ParseTable("Column1, Column2\n1, 2\n3, 4")
	require.NoError(t, err)
	assert.Equal(t, []string{"Column1", "Column2"}, table.Header)
	assert.Equal(t, [][]string{{"1", "2"}, {"3", "4"}}, table.Rows)

	_, err = ParseTable("")
	assert.ErrorIs(t, err, ErrEmptyTable)

	_, err = ParseTable("a,b\n1\n")
	assert.Error(t, err)
}

func TestBundle(t *testing.T) {
	results := []domain.ExtractionResult{
		{Filename: "one.png", Status: domain.ExtractionSuccess, Table: &domain.Table{Header: []string{"a"}, Rows: [][]string{{"1"}}}},
		{Filename: "dir/two.jpg", Status: domain.ExtractionPartial, RawCSV: "x,y\n1"},
		{Filename: "three.png", Status: domain.ExtractionError, Message: "boom"},
		{Filename: "one.jpg", Status: domain.ExtractionPartial, RawCSV: "dup"},
	}

	data, ok, err := Bundle(results)
	require.NoError(t, err)
	require.True(t, ok)

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)

	files := map[string]string{}
	for _, f := range zr.File {
		rc, err := f.Open()
		require.NoError(t, err)
		b, err := io.ReadAll(rc)
		rc.Close()
		require.NoError(t, err)
		files[f.Name] = string(b)
	}
	assert.Equal(t, map[string]string{
		"one.csv":   "a\n1\n",
		"two.csv":   "x,y\n1",
		"one_1.csv": "dup",
	}, files)
}

func TestUniqueCSVNames_AvoidsTakenSuffixes(t *testing.T) {
	results := []domain.ExtractionResult{
		{Filename: "a.png", Status: domain.ExtractionPartial, RawCSV: "first"},
		{Filename: "a.jpg", Status: domain.ExtractionPartial, RawCSV: "second"},
		{Filename: "a_1.png", Status: domain.ExtractionPartial, RawCSV: "third"},
	}
	assert.Equal(t, []string{"a.csv", "a_1.csv", "a_1_1.csv"}, UniqueCSVNames(results))

	data, ok, err := Bundle(results)
	require.NoError(t, err)
	require.True(t, ok)
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)

	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{"a.csv", "a_1.csv", "a_1_1.csv"}, names)

	batch := &Batch{Results: results}
	r, found := batch.Find("a_1.csv")
	require.True(t, found)
	assert.Equal(t, "a.jpg", r.Filename)
	r, found = batch.Find("a_1_1.csv")
	require.True(t, found)
	assert.Equal(t, "a_1.png", r.Filename)
}

func TestBundle_NothingDownloadable(t *testing.T) {
	_, ok, err := Bundle([]domain.ExtractionResult{{Filename: "a.png", Status: domain.ExtractionError}})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBatchStore(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	store := NewBatchStore(time.Hour)
	store.now = func() time.Time { return now }

	b := store.Put(models[0], []domain.ExtractionResult{{Filename: "scan.png", Status: domain.ExtractionPartial, RawCSV: "a"}})
	got, ok := store.Get(b.ID)
	require.True(t, ok)

	r, ok := got.Find("scan.csv")
	require.True(t, ok)
	assert.Equal(t, "scan.png", r.Filename)
	_, ok = got.Find("missing.csv")
	assert.False(t, ok)

	now = now.Add(2 * time.Hour)
	_, ok = store.Get(b.ID)
	assert.False(t, ok)

	store.Purge()
	assert.Equal(t, 0, store.Len())
}

func TestCSVNameAndMime(t *testing.T) {
	assert.Equal(t, "report.final.csv", CSVName("report.final.png"))
	assert.Equal(t, "scan.csv", CSVName("/tmp/scan.JPG"))

	mime, err := MimeType("A.JPG")
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", mime)
	_, err = MimeType("a.gif")
	assert.ErrorIs(t, err, ErrUnsupportedType)
}
