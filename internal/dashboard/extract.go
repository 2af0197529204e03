package dashboard

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"positioning-lab/internal/domain"
	"positioning-lab/internal/extraction"
)

type resultView struct {
	domain.ExtractionResult
	CSVName      string
	Downloadable bool
}

type extractView struct {
	Title       string
	Enabled     bool
	Models      []string
	Selected    string
	MaxUploadMB int64
	Error       string
	BatchID     string
	Results     []resultView
	HasBundle   bool
}

func (s *Server) extractForm() extractView {
	v := extractView{
		Title:       "Image Table Extractor",
		Enabled:     s.deps.Extractor != nil,
		MaxUploadMB: s.cfg.MaxUploadBytes >> 20,
	}
	if s.deps.Extractor != nil {
		v.Models = s.deps.Extractor.Models()
		v.Selected = s.deps.Extractor.DefaultModel()
	}
	return v
}

func (s *Server) handleExtractForm(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, "extract.html", s.extractForm())
}

func (s *Server) handleExtractRun(w http.ResponseWriter, r *http.Request) {
	view := s.extractForm()
	if s.deps.Extractor == nil {
		view.Error = "Table extraction is not configured."
		s.renderStatus(w, r, http.StatusServiceUnavailable, "extract.html", view)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(s.cfg.MaxUploadBytes); err != nil {
		view.Error = fmt.Sprintf("Upload rejected: %v", err)
		s.renderStatus(w, r, http.StatusBadRequest, "extract.html", view)
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	uploads, err := readUploads(r)
	if err != nil {
		view.Error = err.Error()
		s.renderStatus(w, r, http.StatusBadRequest, "extract.html", view)
		return
	}

	model, err := s.deps.Extractor.ResolveModel(r.FormValue("model"))
	if err != nil {
		view.Error = err.Error()
		s.renderStatus(w, r, http.StatusBadRequest, "extract.html", view)
		return
	}
	view.Selected = model

	results, err := s.deps.Extractor.Extract(r.Context(), model, uploads)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, extraction.ErrUnknownModel) || errors.Is(err, extraction.ErrNoFiles) {
			status = http.StatusBadRequest
		}
		view.Error = err.Error()
		s.renderStatus(w, r, status, "extract.html", view)
		return
	}

	batch := s.deps.Batches.Put(model, results)
	view.BatchID = batch.ID
	names := batch.Names()
	for i, res := range results {
		rv := resultView{
			ExtractionResult: res,
			CSVName:          names[i],
			Downloadable:     res.Downloadable(),
		}
		view.HasBundle = view.HasBundle || rv.Downloadable
		view.Results = append(view.Results, rv)
	}

	s.log.Info().
		Str("batch", batch.ID).
		Int("files", len(results)).
		Msg("extraction batch completed")
	s.render(w, r, "extract.html", view)
}

func readUploads(r *http.Request) ([]extraction.Upload, error) {
	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		return nil, extraction.ErrNoFiles
	}
	uploads := make([]extraction.Upload, 0, len(headers))
	for _, h := range headers {
		f, err := h.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", h.Filename, err)
		}
		data, err := io.ReadAll(f)
		_ = f.Close()
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", h.Filename, err)
		}
		uploads = append(uploads, extraction.Upload{Filename: h.Filename, Data: data})
	}
	return uploads, nil
}

func (s *Server) handleExtractFile(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	batch, ok := s.deps.Batches.Get(vars["batch"])
	if !ok {
		writeError(w, r, http.StatusNotFound, "batch not found or expired")
		return
	}
	res, ok := batch.Find(vars["file"])
	if !ok {
		writeError(w, r, http.StatusNotFound, "file not found in batch")
		return
	}

	data, has, err := extraction.ResultCSV(res)
	if err != nil {
		s.log.Error().Err(err).Str("file", res.Filename).Msg("render csv")
		writeError(w, r, http.StatusInternalServerError, "could not render csv")
		return
	}
	if !has {
		writeError(w, r, http.StatusNotFound, "no csv for this file")
		return
	}
	writeDownload(w, "text/csv", vars["file"], data)
}

func (s *Server) handleExtractBundle(w http.ResponseWriter, r *http.Request) {
	batch, ok := s.deps.Batches.Get(mux.Vars(r)["batch"])
	if !ok {
		writeError(w, r, http.StatusNotFound, "batch not found or expired")
		return
	}

	data, has, err := extraction.Bundle(batch.Results)
	if err != nil {
		s.log.Error().Err(err).Str("batch", batch.ID).Msg("bundle csv")
		writeError(w, r, http.StatusInternalServerError, "could not build archive")
		return
	}
	if !has {
		writeError(w, r, http.StatusNotFound, "no csv in this batch")
		return
	}
	writeDownload(w, "application/zip", extraction.BundleName, data)
}

func writeDownload(w http.ResponseWriter, contentType, name string, data []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
