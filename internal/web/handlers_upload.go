package web

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/fieldstone/samplehub/internal/ingest"
	"github.com/fieldstone/samplehub/internal/sample"
	"github.com/go-chi/chi/v5"
)

// keepAliveInterval paces SSE comments so proxies keep idle progress
// streams open.
const keepAliveInterval = 15 * time.Second

// handleUpload accepts a multipart batch of sample files plus the form
// fields that parameterize processing, and runs the full ingestion
// flow synchronously. Progress is published to the session's SSE
// stream as the flow advances.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	maxRequest := s.cfg.Upload.MaxFileSize * int64(s.cfg.Upload.MaxFiles)
	r.Body = http.MaxBytesReader(w, r.Body, maxRequest)

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		respondErrorMessage(w, r, http.StatusBadRequest, "malformed multipart request")
		return
	}
	// Uploaded temp files are always cleaned up, success or failure.
	defer r.MultipartForm.RemoveAll()

	req, err := s.uploadRequest(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.Upload.Timeout)
	defer cancel()

	result, err := s.service.Upload(ctx, identityFrom(r), *req)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, result)
}

// uploadRequest parses and validates the upload form.
func (s *Server) uploadRequest(r *http.Request) (*ingest.UploadRequest, error) {
	req := &ingest.UploadRequest{
		ProjectID: r.FormValue("projectId"),
		SessionID: r.FormValue("sessionId"),
		AgeMode:   sample.AgeCalculationMode(r.FormValue("ageCalculationMode")),
	}

	var err error
	if req.RequestedFileID, err = formInt(r, "requestedFileId"); err != nil {
		return nil, err
	}
	if req.VendorID, err = formInt(r, "vendorId"); err != nil {
		return nil, err
	}
	if req.ClientID, err = formInt(r, "clientId"); err != nil {
		return nil, err
	}

	if raw := r.FormValue("customHeaders"); raw != "" {
		indexed := make(map[string][]string)
		if err := json.Unmarshal([]byte(raw), &indexed); err != nil {
			return nil, ingest.Validationf("malformed customHeaders JSON: %v", err)
		}
		req.CustomHeaders = make(map[int][]string, len(indexed))
		for key, names := range indexed {
			idx, err := strconv.Atoi(key)
			if err != nil || idx < 0 {
				return nil, ingest.Validationf("customHeaders key %q is not a file index", key)
			}
			req.CustomHeaders[idx] = names
		}
	}

	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		return nil, ingest.Validationf("no files uploaded")
	}
	if len(files) > s.cfg.Upload.MaxFiles {
		return nil, ingest.Validationf("too many files: %d exceeds the limit of %d", len(files), s.cfg.Upload.MaxFiles)
	}

	for _, fh := range files {
		if fh.Size > s.cfg.Upload.MaxFileSize {
			return nil, ingest.Validationf("file %s exceeds the size limit", fh.Filename)
		}
		data, err := readUpload(fh)
		if err != nil {
			return nil, err
		}
		req.Files = append(req.Files, ingest.UploadFile{Name: fh.Filename, Data: data})
	}
	return req, nil
}

func readUpload(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("open upload %s: %w", fh.Filename, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read upload %s: %w", fh.Filename, err)
	}
	return data, nil
}

func formInt(r *http.Request, field string) (int, error) {
	raw := r.FormValue(field)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, ingest.Validationf("field %s must be an integer", field)
	}
	return n, nil
}

// handleDetectHeaders parses a single file and returns its sanitized
// header names without persisting anything.
func (s *Server) handleDetectHeaders(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Upload.MaxFileSize)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		respondErrorMessage(w, r, http.StatusBadRequest, "malformed multipart request")
		return
	}
	defer r.MultipartForm.RemoveAll()

	files := r.MultipartForm.File["file"]
	if len(files) != 1 {
		respondErrorMessage(w, r, http.StatusBadRequest, "exactly one file is required")
		return
	}

	data, err := readUpload(files[0])
	if err != nil {
		respondError(w, r, err)
		return
	}

	headers, err := s.service.DetectHeaders(files[0].Filename, data)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, map[string]interface{}{"headers": headers})
}

// handleProgress streams processing events for a session via
// Server-Sent Events. Reconnecting with the same session id evicts the
// previous subscriber.
func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if sessionID == "" {
		respondErrorMessage(w, r, http.StatusBadRequest, "session id is required")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		respondErrorMessage(w, r, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	events := s.notifier.Subscribe(sessionID)
	defer s.notifier.Unsubscribe(sessionID, events)

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	for {
		select {
		case event, open := <-events:
			if !open {
				// Evicted by a newer subscriber for this session.
				return
			}
			data, _ := json.Marshal(event)
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, data)
			flusher.Flush()

		case <-keepAlive.C:
			fmt.Fprint(w, ": keep-alive\n\n")
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}
