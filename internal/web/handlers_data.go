package web

import (
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/fieldstone/samplehub/internal/extract"
	"github.com/fieldstone/samplehub/internal/filter"
	"github.com/fieldstone/samplehub/internal/header"
	"github.com/fieldstone/samplehub/internal/sample"
	"github.com/go-chi/chi/v5"
)

// handleGetMappings resolves the highest-precedence mapped name for
// each requested original header under the given vendor/client pair.
func (s *Server) handleGetMappings(w http.ResponseWriter, r *http.Request) {
	vendorID, _ := strconv.Atoi(r.URL.Query().Get("vendorId"))
	clientID, _ := strconv.Atoi(r.URL.Query().Get("clientId"))

	var originals []string
	for _, raw := range strings.Split(r.URL.Query().Get("originalHeaders"), ",") {
		if name := header.Sanitize(raw); name != "" {
			originals = append(originals, name)
		}
	}
	if len(originals) == 0 {
		respondErrorMessage(w, r, http.StatusBadRequest, "originalHeaders is required")
		return
	}

	rules, err := s.store.GetMappings(r.Context(), vendorID, clientID, originals)
	if err != nil {
		respondError(w, r, err)
		return
	}

	resolved := header.ApplyMappings(originals, rules, vendorID, clientID)
	mappings := make(map[string]string, len(originals))
	for i, col := range resolved {
		if col.OriginalName != "" {
			mappings[originals[i]] = col.Name
		}
	}
	writeJSON(w, map[string]interface{}{"mappings": mappings})
}

type saveMappingsRequest struct {
	VendorID int `json:"vendorId"`
	ClientID int `json:"clientId"`
	Mappings []struct {
		Original string `json:"original"`
		Mapped   string `json:"mapped"`
	} `json:"mappings"`
}

// handleSaveMappings upserts header mapping rules scoped to the given
// vendor/client pair.
func (s *Server) handleSaveMappings(w http.ResponseWriter, r *http.Request) {
	var body saveMappingsRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondErrorMessage(w, r, http.StatusBadRequest, "malformed JSON body")
		return
	}
	if len(body.Mappings) == 0 {
		respondErrorMessage(w, r, http.StatusBadRequest, "mappings is required")
		return
	}

	rules := make([]sample.MappingRule, 0, len(body.Mappings))
	for _, m := range body.Mappings {
		original := header.Sanitize(m.Original)
		mapped := header.Sanitize(m.Mapped)
		if original == "" || mapped == "" {
			respondErrorMessage(w, r, http.StatusBadRequest, "mapping names must not be empty")
			return
		}
		rules = append(rules, sample.MappingRule{
			Original: original,
			Mapped:   mapped,
			VendorID: body.VendorID,
			ClientID: body.ClientID,
		})
	}

	count, err := s.store.UpsertMappings(r.Context(), rules)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, map[string]interface{}{"upserted": count})
}

type extractRequest struct {
	extract.Request
	ProjectID string `json:"projectId"`
}

type extractResponse struct {
	Files         []extract.FileOutput `json:"files"`
	ExcludedCount int                  `json:"excludedCount"`
	ExcludedNames []string             `json:"excludedNames"`
	Renamed       map[string]string    `json:"renamed,omitempty"`
}

// handleExtract filters the requested columns through the exclusion and
// inclusion rules, then runs the extraction engine.
func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	var body extractRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondErrorMessage(w, r, http.StatusBadRequest, "malformed JSON body")
		return
	}
	if body.TableName == "" {
		respondErrorMessage(w, r, http.StatusBadRequest, "tableName is required")
		return
	}

	exclusions, err := s.store.Exclusions(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	var inclusions map[string]string
	if body.ProjectID != "" {
		if inclusions, err = s.store.Inclusions(r.Context(), body.ProjectID); err != nil {
			respondError(w, r, err)
			return
		}
	}

	columns := make([]sample.Column, 0, len(body.SelectedHeaders))
	for _, raw := range body.SelectedHeaders {
		if name := header.Sanitize(raw); name != "" {
			columns = append(columns, sample.Column{Name: name, Type: sample.TypeText})
		}
	}
	filtered := filter.Apply(columns, nil, exclusions, inclusions)

	body.SelectedHeaders = body.SelectedHeaders[:0]
	for _, col := range filtered.Columns {
		body.SelectedHeaders = append(body.SelectedHeaders, col.Name)
	}
	// Re-included columns still live on the table under their original
	// name; the engine selects them aliased to the override name.
	if len(filtered.Renamed) > 0 {
		body.Renames = make(map[string]string, len(filtered.Renamed))
		for original, override := range filtered.Renamed {
			body.Renames[override] = original
		}
	}

	files, err := s.extractor.Run(r.Context(), identityFrom(r), body.Request)
	if err != nil {
		respondError(w, r, err)
		return
	}

	writeJSON(w, extractResponse{
		Files:         files,
		ExcludedCount: filtered.ExcludedCount,
		ExcludedNames: filtered.ExcludedNames,
		Renamed:       filtered.Renamed,
	})
}

type addDNCRequest struct {
	Numbers []string `json:"numbers"`
}

// handleAddDNC loads phone numbers onto the do-not-call list consulted
// by the scrubbing stage. Numbers are reduced to their last 10 digits
// to match the format the phone columns are normalized to.
func (s *Server) handleAddDNC(w http.ResponseWriter, r *http.Request) {
	var body addDNCRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondErrorMessage(w, r, http.StatusBadRequest, "malformed JSON body")
		return
	}

	numbers := make([]string, 0, len(body.Numbers))
	for _, raw := range body.Numbers {
		digits := strings.Map(func(c rune) rune {
			if c >= '0' && c <= '9' {
				return c
			}
			return -1
		}, raw)
		if len(digits) > 10 {
			digits = digits[len(digits)-10:]
		}
		if digits != "" {
			numbers = append(numbers, digits)
		}
	}
	if len(numbers) == 0 {
		respondErrorMessage(w, r, http.StatusBadRequest, "numbers is required")
		return
	}

	if err := s.store.AddDNCNumbers(r.Context(), numbers); err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, map[string]interface{}{"added": len(numbers)})
}

// handleDownload serves a previously written extract file. Access is
// constrained to the requesting identity's own directory.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	filename := filepath.Base(chi.URLParam(r, "filename"))
	if filename == "." || filename == "/" || filename == ".." {
		respondErrorMessage(w, r, http.StatusBadRequest, "invalid file name")
		return
	}

	path := filepath.Join(s.extractor.Dir(identityFrom(r).Username), filename)
	if _, err := os.Stat(path); err != nil {
		respondErrorMessage(w, r, http.StatusNotFound, "file not found")
		return
	}

	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	http.ServeFile(w, r, path)
}

// handleProjectFiles lists where a project's uploads landed.
func (s *Server) handleProjectFiles(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectID")
	regs, err := s.store.ListRegistrations(r.Context(), projectID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if regs == nil {
		regs = []sample.FileRegistration{}
	}
	writeJSON(w, map[string]interface{}{"files": regs})
}
