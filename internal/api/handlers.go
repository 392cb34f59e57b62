package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/palaverhq/palaver/internal/cluster"
	"github.com/palaverhq/palaver/pkg/types"
)

// maxBodyBytes caps request bodies. The largest legitimate body is a subset
// selection, which is a list of transcript ids.
const maxBodyBytes = 1 << 20

func (s *Server) handleClusters(w http.ResponseWriter, r *http.Request) {
	owner, date, ok := s.params(w, r)
	if !ok {
		return
	}
	ctx, cancel := s.opCtx(r)
	defer cancel()
	res, err := s.engine.Clusters(ctx, owner, date)
	writeResult(w, res, err)
}

func (s *Server) handleFull(w http.ResponseWriter, r *http.Request) {
	owner, date, ok := s.params(w, r)
	if !ok {
		return
	}
	ctx, cancel := s.opCtx(r)
	defer cancel()
	res, err := s.engine.ClusterFull(ctx, owner, date)
	writeResult(w, res, err)
}

func (s *Server) handleIncremental(w http.ResponseWriter, r *http.Request) {
	owner, date, ok := s.params(w, r)
	if !ok {
		return
	}
	var body struct {
		Exclude []string `json:"exclude"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	ctx, cancel := s.opCtx(r)
	defer cancel()
	res, err := s.engine.ClusterNew(ctx, owner, date, body.Exclude)
	writeResult(w, res, err)
}

func (s *Server) handleSubset(w http.ResponseWriter, r *http.Request) {
	owner, date, ok := s.params(w, r)
	if !ok {
		return
	}
	var body struct {
		TranscriptIDs []string `json:"transcriptIds"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	ctx, cancel := s.opCtx(r)
	defer cancel()
	res, err := s.engine.ClusterSubset(ctx, owner, date, body.TranscriptIDs)
	writeResult(w, res, err)
}

func (s *Server) handleMerge(w http.ResponseWriter, r *http.Request) {
	owner, date, ok := s.params(w, r)
	if !ok {
		return
	}
	var body struct {
		ClusterIDs []string `json:"clusterIds"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	ctx, cancel := s.opCtx(r)
	defer cancel()
	res, err := s.engine.MergeClusters(ctx, owner, date, body.ClusterIDs)
	writeResult(w, res, err)
}

func (s *Server) handleRename(w http.ResponseWriter, r *http.Request) {
	owner, date, ok := s.params(w, r)
	if !ok {
		return
	}
	clusterID := chi.URLParam(r, "clusterID")
	var body struct {
		Title string `json:"title"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	ctx, cancel := s.opCtx(r)
	defer cancel()
	res, err := s.engine.RenameCluster(ctx, owner, date, clusterID, body.Title)
	writeResult(w, res, err)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	owner, date, ok := s.params(w, r)
	if !ok {
		return
	}
	clusterID := chi.URLParam(r, "clusterID")
	ctx, cancel := s.opCtx(r)
	defer cancel()
	res, err := s.engine.DeleteCluster(ctx, owner, date, clusterID)
	writeResult(w, res, err)
}

func (s *Server) handleRecluster(w http.ResponseWriter, r *http.Request) {
	owner, date, ok := s.params(w, r)
	if !ok {
		return
	}
	var body struct {
		Confirm bool `json:"confirm"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	// Discards every stored cluster and manual edit for the day, so an
	// explicit acknowledgement is required.
	if !body.Confirm {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": `recluster discards all clusters for the day; set "confirm": true`,
		})
		return
	}
	ctx, cancel := s.opCtx(r)
	defer cancel()
	res, err := s.engine.ReclusterAll(ctx, owner, date)
	writeResult(w, res, err)
}

// ── helpers ──────────────────────────────────────────────────────────────────

// params extracts and validates the route's owner and date. On a bad date it
// writes the 400 itself and reports false.
func (s *Server) params(w http.ResponseWriter, r *http.Request) (owner, date string, ok bool) {
	owner = chi.URLParam(r, "ownerRef")
	date = chi.URLParam(r, "date")
	if _, err := time.Parse(types.DateFormat, date); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid date " + date + "; want YYYY-MM-DD",
		})
		return "", "", false
	}
	return owner, date, true
}

// opCtx derives the per-operation budget from the request context.
func (s *Server) opCtx(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), s.opTimeout)
}

// decodeBody decodes a JSON request body into v. An empty body leaves v at
// its zero value. On malformed JSON it writes the 400 itself and reports
// false.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON body: " + err.Error(),
		})
		return false
	}
	return true
}

// writeResult maps an engine outcome onto the wire: 200 with the result on
// success, otherwise the status for the error.
func writeResult(w http.ResponseWriter, res *cluster.Result, err error) {
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		// Internal detail stays in the log.
		slog.Error("cluster operation failed", "error", err)
		writeJSON(w, status, map[string]string{"error": "internal error"})
		return
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// statusFor maps engine sentinel errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, cluster.ErrTimedOut):
		return http.StatusGatewayTimeout
	case errors.Is(err, cluster.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, cluster.ErrNotClustered), errors.Is(err, cluster.ErrClusterNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
