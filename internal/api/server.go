package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"proctorboard/pkg/interfaces"
	"proctorboard/pkg/types"
)

// Registry is the read-only view of the connection registry the API
// needs, kept as a local interface to avoid coupling to the monitor
// package's implementation.
type Registry interface {
	CountConnections(examID string) int
	Stats() map[string]int
}

// Server is the HTTP surface around the session store: session lifecycle
// for exam start/submission, and the snapshot endpoint the teacher
// monitor polls to reconcile what the push channel may have missed.
// No business logic lives here, only HTTP handling and JSON.
type Server struct {
	store    interfaces.SessionStore
	registry Registry
	router   *mux.Router
}

// NewServer creates the API server and mounts its routes.
func NewServer(store interfaces.SessionStore, registry Registry) *Server {
	s := &Server{
		store:    store,
		registry: registry,
		router:   mux.NewRouter(),
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(s.corsMiddleware, s.jsonMiddleware)

	s.router.HandleFunc("/api/exam-sessions", s.createSession).Methods(http.MethodPost, http.MethodOptions)
	s.router.HandleFunc("/api/exam-sessions/{id}/end", s.endSession).Methods(http.MethodPost, http.MethodOptions)
	s.router.HandleFunc("/api/exams/{examId}/sessions", s.listExamSessions).Methods(http.MethodGet, http.MethodOptions)
	s.router.HandleFunc("/health", s.healthCheck).Methods(http.MethodGet)
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// CreateSessionRequest starts a student's attempt at an exam.
type CreateSessionRequest struct {
	ExamID    string `json:"examId"`
	StudentID string `json:"studentId"`
}

// SessionListResponse is the teacher monitor's snapshot payload.
type SessionListResponse struct {
	Sessions        []*types.ExamSession `json:"sessions"`
	ConnectionCount int                  `json:"connectionCount"`
}

func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, "Invalid JSON body", http.StatusBadRequest)
		return
	}

	if !types.IsValidID(req.ExamID) {
		s.sendError(w, "Invalid examId format", http.StatusBadRequest)
		return
	}
	if !types.IsValidID(req.StudentID) {
		s.sendError(w, "Invalid studentId format", http.StatusBadRequest)
		return
	}

	session, err := s.store.CreateSession(r.Context(), req.ExamID, req.StudentID)
	if err != nil {
		log.Printf("Failed to create session for exam %s student %s: %v", req.ExamID, req.StudentID, err)
		s.sendError(w, "Failed to create exam session", http.StatusInternalServerError)
		return
	}

	s.sendJSON(w, session, http.StatusCreated)
}

func (s *Server) endSession(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	err := s.store.EndSession(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, interfaces.ErrSessionNotFound) {
			s.sendError(w, "Exam session not found", http.StatusNotFound)
			return
		}
		log.Printf("Failed to end session %s: %v", sessionID, err)
		s.sendError(w, "Failed to end exam session", http.StatusInternalServerError)
		return
	}

	s.sendJSON(w, map[string]string{"status": "ended"}, http.StatusOK)
}

func (s *Server) listExamSessions(w http.ResponseWriter, r *http.Request) {
	examID := mux.Vars(r)["examId"]
	if !types.IsValidID(examID) {
		s.sendError(w, "Invalid examId format", http.StatusBadRequest)
		return
	}

	sessions, err := s.store.ListSessionsByExam(r.Context(), examID)
	if err != nil {
		log.Printf("Failed to list sessions for exam %s: %v", examID, err)
		s.sendError(w, "Failed to list exam sessions", http.StatusInternalServerError)
		return
	}

	if sessions == nil {
		sessions = []*types.ExamSession{}
	}

	s.sendJSON(w, &SessionListResponse{
		Sessions:        sessions,
		ConnectionCount: s.registry.CountConnections(examID),
	}, http.StatusOK)
}

func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "healthy"
	code := http.StatusOK
	if err := s.store.HealthCheck(ctx); err != nil {
		log.Printf("Health check failed: %v", err)
		status = "unhealthy"
		code = http.StatusServiceUnavailable
	}

	s.sendJSON(w, map[string]interface{}{
		"status":   status,
		"registry": s.registry.Stats(),
	}, code)
}

func (s *Server) sendJSON(w http.ResponseWriter, v interface{}, code int) {
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}

func (s *Server) sendError(w http.ResponseWriter, message string, code int) {
	s.sendJSON(w, map[string]string{"message": message}, code)
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}
