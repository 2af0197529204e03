// Package extraction turns images of tables into CSV using a vision model.
package extraction

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"positioning-lab/internal/domain"
	"positioning-lab/internal/observability"
	"positioning-lab/internal/openrouter"
)

const (
	systemPrompt = "You are a data extraction expert. Extract table data from images and return it as clean, " +
		"column-aligned CSV. Infer headers if present, otherwise use 'Column1, Column2, ...'. " +
		"Return **only** the CSV data, no additional text." +
		"**DO NOT** include any extraneous text like 'Processing file' or '--- Extracted CSV ---'."
	userPrompt = "Extract this table as CSV:"

	maxTokens      = 10000
	defaultWorkers = 2
)

var (
	// ErrUnknownModel is returned for a model outside the allowed list.
	ErrUnknownModel = errors.New("extraction: model not allowed")
	// ErrUnsupportedType is returned for files that are not jpeg or png.
	ErrUnsupportedType = errors.New("extraction: unsupported file type")
	// ErrNoFiles is returned for an empty upload.
	ErrNoFiles = errors.New("extraction: no files")
)

// Upload is one image file.
type Upload struct {
	Filename string
	Data     []byte
}

// Completer is the chat completion call used by Extractor.
type Completer interface {
	Complete(ctx context.Context, req openrouter.Request) (string, error)
}

// Extractor runs table extraction for uploaded images.
type Extractor struct {
	llm          Completer
	models       []string
	defaultModel string
	workers      int
	timeout      time.Duration
	log          zerolog.Logger
}

// NewExtractor creates an Extractor. The first model is the default.
func NewExtractor(llm Completer, models []string, log zerolog.Logger) *Extractor {
	e := &Extractor{
		llm:     llm,
		models:  models,
		workers: defaultWorkers,
		log:     log.With().Str("component", "extraction").Logger(),
	}
	if len(models) > 0 {
		e.defaultModel = models[0]
	}
	return e
}

// Models returns the allowed models, default first.
func (e *Extractor) Models() []string {
	return e.models
}

// DefaultModel returns the preselected model.
func (e *Extractor) DefaultModel() string {
	return e.defaultModel
}

// SetWorkers bounds concurrent model calls. Values below 1 are ignored.
func (e *Extractor) SetWorkers(n int) {
	if n >= 1 {
		e.workers = n
	}
}

// SetTimeout bounds each per-file model call. Zero means no extra bound.
func (e *Extractor) SetTimeout(d time.Duration) {
	e.timeout = d
}

// ResolveModel returns model if allowed, the default for "", or ErrUnknownModel.
func (e *Extractor) ResolveModel(model string) (string, error) {
	if model == "" {
		return e.defaultModel, nil
	}
	for _, m := range e.models {
		if m == model {
			return m, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrUnknownModel, model)
}

// Extract processes every file and returns one result per file in upload order.
// Per-file failures become Error results; only bad arguments fail the call.
func (e *Extractor) Extract(ctx context.Context, model string, files []Upload) ([]domain.ExtractionResult, error) {
	if len(files) == 0 {
		return nil, ErrNoFiles
	}
	model, err := e.ResolveModel(model)
	if err != nil {
		return nil, err
	}

	results := make([]domain.ExtractionResult, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i, f := range files {
		g.Go(func() error {
			results[i] = e.extractOne(gctx, model, f)
			return nil
		})
	}
	_ = g.Wait()

	for _, r := range results {
		observability.RecordExtraction(string(r.Status))
	}
	return results, nil
}

func (e *Extractor) extractOne(ctx context.Context, model string, f Upload) domain.ExtractionResult {
	res := domain.ExtractionResult{Filename: f.Filename}

	mime, err := MimeType(f.Filename)
	if err != nil {
		res.Status = domain.ExtractionError
		res.Message = err.Error()
		return res
	}

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	text, err := e.llm.Complete(ctx, openrouter.Request{
		Model: model,
		Messages: []openrouter.Message{
			openrouter.SystemMessage(systemPrompt),
			{Role: openrouter.RoleUser, Parts: []openrouter.ContentPart{
				openrouter.TextPart(userPrompt),
				openrouter.ImagePart(mime, f.Data),
			}},
		},
		MaxTokens: maxTokens,
	})
	if err != nil {
		e.log.Warn().Err(err).Str("file", f.Filename).Str("model", model).Msg("table extraction failed")
		res.Status = domain.ExtractionError
		res.Message = err.Error()
		return res
	}

	res.RawCSV = StripFences(text)
	table, err := ParseTable(res.RawCSV)
	if err != nil {
		res.Status = domain.ExtractionPartial
		res.Message = fmt.Sprintf("Extracted but couldn't parse CSV: %v", err)
		return res
	}
	res.Status = domain.ExtractionSuccess
	res.Message = fmt.Sprintf("Extracted %d rows", len(table.Rows))
	res.Table = table
	return res
}

// MimeType maps an accepted file name to its image type.
func MimeType(filename string) (string, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg":
		return "image/jpeg", nil
	case ".png":
		return "image/png", nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedType, filename)
	}
}

// CSVName returns the download name for a result, e.g. scan.png -> scan.csv.
func CSVName(filename string) string {
	base := filepath.Base(filename)
	return strings.TrimSuffix(base, filepath.Ext(base)) + ".csv"
}
