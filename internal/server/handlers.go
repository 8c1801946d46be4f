package server

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/hyperjump/umekomi/internal/classify"
	"github.com/hyperjump/umekomi/internal/docs"
	"github.com/hyperjump/umekomi/internal/executor"
)

// requestParams is the wire form of the per-request knobs.
type requestParams struct {
	TraversalScope      string `json:"traversal_scope,omitempty"`
	BatchSize           int    `json:"batch_size,omitempty"`
	OverwriteEmbeddings bool   `json:"overwrite_embeddings,omitempty"`
	// DropContent clears tensor and blob payloads from the response so
	// callers that only need embeddings do not pay for the round trip.
	DropContent bool `json:"drop_content,omitempty"`
}

type operationRequest struct {
	Data       []*docs.Document `json:"data"`
	Parameters requestParams    `json:"parameters"`
}

type operationResponse struct {
	Data []*docs.Document `json:"data"`
}

func (s *Server) handleEncode(w http.ResponseWriter, r *http.Request) {
	s.handleOperation(w, r, executor.OpEncode)
}

func (s *Server) handleRank(w http.ResponseWriter, r *http.Request) {
	s.handleOperation(w, r, executor.OpRank)
}

func (s *Server) handleOperation(w http.ResponseWriter, r *http.Request, op string) {
	var req operationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	scope, err := classify.ParseScope(req.Parameters.TraversalScope)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.logger.Debug("operation request",
		zap.String("operation", op),
		zap.Int("documents", len(req.Data)),
		zap.String("scope", scope.String()),
	)
	params := executor.Params{
		TraversalScope:      scope,
		BatchSize:           req.Parameters.BatchSize,
		OverwriteEmbeddings: req.Parameters.OverwriteEmbeddings,
	}
	if err := s.exec.Execute(r.Context(), op, req.Data, params); err != nil {
		s.logger.Error("operation failed", zap.String("operation", op), zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if req.Parameters.DropContent {
		for _, d := range req.Data {
			dropContent(d)
		}
	}
	s.respondJSON(w, http.StatusOK, operationResponse{Data: req.Data})
}

// dropContent strips heavy payloads from a document and one level of matches.
func dropContent(d *docs.Document) {
	if d == nil {
		return
	}
	d.Tensor = nil
	d.Blob = nil
	for _, m := range d.Matches {
		if m != nil {
			m.Tensor = nil
			m.Blob = nil
		}
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{
		"status": "ok",
		"config": map[string]interface{}{
			"dimensions":      s.config.Model.Dimensions,
			"logit_scale":     s.config.Model.LogitScale,
			"minibatch_size":  s.config.Encode.MinibatchSize,
			"max_tokens":      s.config.Encode.MaxTokens,
			"image_size":      s.config.Encode.ImageSize,
			"num_workers":     s.config.Encode.NumWorkerPreprocess,
			"device":          s.config.Runtime.Device,
			"replicas":        s.config.Runtime.Replicas,
			"text_cache_size": s.config.Model.CacheSize,
		},
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
