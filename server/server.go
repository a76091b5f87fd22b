// Copyright 2025 Chorus
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package server is the thin HTTP surface over the orchestration
// engine: one orchestrate endpoint, health and Prometheus metrics.
package server

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"chorus/engine/config"
	"chorus/engine/engine"
	"chorus/engine/shared/logger"
)

// Server routes HTTP requests into the engine.
type Server struct {
	engine *engine.Engine
	cfg    config.ServerConfig
	log    *logger.Logger
}

// New builds a server around an engine.
func New(eng *engine.Engine, cfg config.ServerConfig) *Server {
	return &Server{
		engine: eng,
		cfg:    cfg,
		log:    logger.New("server"),
	}
}

// Handler assembles the route table with CORS and, when a JWT secret is
// configured, bearer-token authentication on the orchestrate endpoint.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/health", s.handleHealth).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	orchestrate := http.Handler(http.HandlerFunc(s.handleOrchestrate))
	if s.cfg.JWTSecret != "" {
		orchestrate = s.authMiddleware(orchestrate)
	}
	r.Handle("/v1/orchestrate", orchestrate).Methods("POST")
	r.HandleFunc("/v1/executions/{id}", s.handleExecution).Methods("GET")

	origins := s.cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})

	return c.Handler(r)
}

// OrchestrateRequest is the inbound request body.
type OrchestrateRequest struct {
	UserID string `json:"user_id"`
	Input  string `json:"input"`
}

// OrchestrateResponse mirrors the finalized execution state.
type OrchestrateResponse struct {
	ExecutionID string                 `json:"execution_id"`
	Answer      string                 `json:"answer"`
	Intent      string                 `json:"intent,omitempty"`
	Confidence  float64                `json:"confidence,omitempty"`
	Error       string                 `json:"error,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

func (s *Server) handleOrchestrate(w http.ResponseWriter, r *http.Request) {
	var req OrchestrateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Input == "" {
		writeError(w, http.StatusBadRequest, "input is required")
		return
	}
	if req.UserID == "" {
		if uid, ok := userIDFromContext(r.Context()); ok {
			req.UserID = uid
		} else {
			req.UserID = "anonymous"
		}
	}

	st := s.engine.Execute(r.Context(), engine.NewState(req.UserID, req.Input))

	s.log.Info(req.UserID, st.ExecutionID, "orchestration finished", map[string]interface{}{
		"intent": st.Intent,
		"failed": st.Error != "",
	})

	writeJSON(w, http.StatusOK, OrchestrateResponse{
		ExecutionID: st.ExecutionID,
		Answer:      st.Answer,
		Intent:      st.Intent,
		Confidence:  st.Confidence,
		Error:       st.Error,
		Metadata:    st.FinalMetadata,
	})
}

func (s *Server) handleExecution(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	st, err := s.engine.Snapshot(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, "execution not found")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
