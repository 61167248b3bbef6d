package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"linkrelay/internal/domain"
	"linkrelay/internal/ingest"
	"linkrelay/internal/queue"
)

// Server exposes the share-retry queue over a local HTTP API. It is the
// transport the sharing clients talk to; it owns no queue logic of its own.
type Server struct {
	addr     string
	queue    *queue.Store
	flusher  *queue.Flusher
	ingestor ingest.Ingestor
	log      logrus.FieldLogger
}

// NewServer creates an API server over the given queue and flusher.
func NewServer(addr string, q *queue.Store, f *queue.Flusher, ing ingest.Ingestor, logger logrus.FieldLogger) *Server {
	return &Server{
		addr:     addr,
		queue:    q,
		flusher:  f,
		ingestor: ing,
		log:      logger.WithField("component", "api"),
	}
}

// Router builds the HTTP routing table.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Route("/shares", func(r chi.Router) {
		r.Post("/", s.handleEnqueue)
		r.Get("/", s.handleList)
		r.Delete("/", s.handleClearAll)
		r.Get("/count", s.handleCount)
		r.Get("/{id}", s.handleGet)
		r.Patch("/{id}", s.handleUpdate)
		r.Delete("/{id}", s.handleDequeue)
	})
	r.Post("/flush", s.handleFlush)

	return r
}

// Start runs the HTTP server until the context is cancelled, then shuts it
// down gracefully. It blocks.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.addr,
		Handler: s.Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("addr", s.addr).Info("API server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.log.Info("Shutting down API server...")
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	var req domain.ShareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.URL == "" {
		http.Error(w, "url is required", http.StatusBadRequest)
		return
	}

	// Enqueue is best-effort; 202 reflects that persistence is not
	// guaranteed even on a well-formed request.
	share := s.queue.Enqueue(r.Context(), req)
	s.writeJSON(w, http.StatusAccepted, share)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	shares, err := s.queue.PendingShares(r.Context())
	if err != nil {
		s.serverError(w, err, "Failed to list pending shares")
		return
	}
	if shares == nil {
		shares = []domain.QueuedShare{}
	}
	s.writeJSON(w, http.StatusOK, shares)
}

func (s *Server) handleCount(w http.ResponseWriter, r *http.Request) {
	count, err := s.queue.PendingShareCount(r.Context())
	if err != nil {
		s.serverError(w, err, "Failed to count pending shares")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]int{"count": count})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	share, err := s.queue.ShareByID(r.Context(), id)
	if err != nil {
		s.serverError(w, err, "Failed to look up share")
		return
	}
	if share == nil {
		http.Error(w, "share not found", http.StatusNotFound)
		return
	}
	s.writeJSON(w, http.StatusOK, share)
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var patch domain.SharePatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	// Updating an unknown id is a silent no-op in the queue; the API keeps
	// that idempotent contract rather than reporting 404.
	if err := s.queue.Update(r.Context(), id, patch); err != nil {
		s.serverError(w, err, "Failed to update share")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDequeue(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.queue.Dequeue(r.Context(), id); err != nil {
		s.serverError(w, err, "Failed to dequeue share")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleClearAll(w http.ResponseWriter, r *http.Request) {
	if err := s.queue.ClearAll(r.Context()); err != nil {
		s.serverError(w, err, "Failed to clear share queue")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleFlush(w http.ResponseWriter, r *http.Request) {
	result, err := s.flusher.Flush(r.Context(), s.ingestor.Deliver)
	if err != nil {
		s.serverError(w, err, "Flush cycle failed")
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.WithError(err).Error("Failed to encode response")
	}
}

func (s *Server) serverError(w http.ResponseWriter, err error, msg string) {
	s.log.WithError(err).Error(msg)
	http.Error(w, "internal error", http.StatusInternalServerError)
}
