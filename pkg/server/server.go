// Package server exposes a core.Repository over HTTP.
//
// Routes follow /<kind>/<identifier>:
//
//	certificate, document, type   HEAD GET POST
//	draft                         HEAD GET POST DELETE
//	queue                         HEAD GET PUT POST DELETE
//
// GET on a queue claims one message. Committed kinds are write-once: a POST
// on an occupied identifier answers 409. Every request except /health and
// /metrics must carry valid notarized credentials.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/aretw0/lifecycle"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/aretw0/nebula/pkg/codec"
	"github.com/aretw0/nebula/pkg/core"
	"github.com/aretw0/nebula/pkg/metrics"
)

// DefaultCredentialAge is how old a credentials timestamp may be.
const DefaultCredentialAge = 5 * time.Minute

// maxBody caps request bodies.
const maxBody = 16 << 20

// Config holds the configuration for the server.
type Config struct {
	Repository core.Repository
	Notary     core.Notary
	Codec      core.Codec
	Logger     *slog.Logger
	Metrics    *metrics.Collector
	// Anonymous disables the credentials check.
	Anonymous bool
	// CredentialAge bounds the age of a credentials timestamp.
	CredentialAge time.Duration
	Picker        core.Picker
}

// Server routes HTTP requests to a repository.
type Server struct {
	repo      core.Repository
	notary    core.Notary
	codec     core.Codec
	logger    *slog.Logger
	metrics   *metrics.Collector
	anonymous bool
	maxAge    time.Duration
	picker    core.Picker
	router    chi.Router
}

// New creates a server for config.Repository.
func New(config Config) (*Server, error) {
	if config.Repository == nil {
		return nil, fmt.Errorf("%w: server requires a repository", core.ErrInvalidParameter)
	}
	if config.Notary == nil && !config.Anonymous {
		return nil, fmt.Errorf("%w: server requires a notary to check credentials", core.ErrInvalidParameter)
	}
	if config.Codec == nil {
		config.Codec = codec.New()
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.DiscardHandler)
	}
	if config.CredentialAge <= 0 {
		config.CredentialAge = DefaultCredentialAge
	}
	s := &Server{
		repo:      config.Repository,
		notary:    config.Notary,
		codec:     config.Codec,
		logger:    config.Logger,
		metrics:   config.Metrics,
		anonymous: config.Anonymous,
		maxAge:    config.CredentialAge,
		picker:    config.Picker,
	}
	s.router = s.routes()
	return s, nil
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() chi.Router {
	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	if s.metrics != nil {
		router.Use(s.observe)
	}

	router.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	if s.metrics != nil {
		router.Handle("/metrics", s.metrics.Handler())
	}

	router.Group(func(r chi.Router) {
		r.Use(s.authenticate)

		for _, kind := range []string{core.KindCertificate, core.KindDocument, core.KindType} {
			path := "/" + kind + "/{id}"
			r.Head(path, s.handleExists(kind))
			r.Get(path, s.handleFetch(kind))
			r.Post(path, s.handleCreate(kind))
		}

		draft := "/" + core.KindDraft + "/{id}"
		r.Head(draft, s.handleExists(core.KindDraft))
		r.Get(draft, s.handleFetch(core.KindDraft))
		r.Post(draft, s.handleSaveDraft)
		r.Delete(draft, s.handleDeleteDraft)

		queue := "/" + core.KindQueue + "/{id}"
		r.Head(queue, s.handleQueueExists)
		r.Get(queue, s.handleDequeue)
		r.Put(queue, s.handleCreateQueue)
		r.Post(queue, s.handleEnqueue)
		r.Delete(queue, s.handleDeleteQueue)
	})
	return router
}

// Run serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	lifecycle.Go(ctx, func(ctx context.Context) error {
		s.logger.Info("serving repository", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return err
		}
		return nil
	}, lifecycle.WithErrorHandler(func(err error) {
		s.logger.Error("server stopped", "error", err)
	}))

	select {
	case err := <-errCh:
		return fmt.Errorf("failed to serve on %s: %w", addr, err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.logger.Info("shutting down server")
	return srv.Shutdown(shutdownCtx)
}

// --- handlers ---

func (s *Server) handleExists(kind string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if _, _, err := core.ParseID(id); err != nil {
			s.fail(w, r, err)
			return
		}
		var (
			ok  bool
			err error
		)
		switch kind {
		case core.KindCertificate:
			ok, err = s.repo.CertificateExists(r.Context(), id)
		case core.KindDraft:
			ok, err = s.repo.DraftExists(r.Context(), id)
		case core.KindDocument:
			ok, err = s.repo.DocumentExists(r.Context(), id)
		case core.KindType:
			ok, err = s.repo.TypeExists(r.Context(), id)
		}
		if err != nil {
			s.fail(w, r, err)
			return
		}
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

func (s *Server) handleFetch(kind string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if _, _, err := core.ParseID(id); err != nil {
			s.fail(w, r, err)
			return
		}
		var (
			doc *core.Document
			err error
		)
		switch kind {
		case core.KindCertificate:
			doc, err = s.repo.FetchCertificate(r.Context(), id)
		case core.KindDraft:
			doc, err = s.repo.FetchDraft(r.Context(), id)
		case core.KindDocument:
			doc, err = s.repo.FetchDocument(r.Context(), id)
		case core.KindType:
			doc, err = s.repo.FetchType(r.Context(), id)
		}
		s.writeDocument(w, r, doc, err)
	}
}

func (s *Server) handleCreate(kind string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		doc, err := s.readDocument(r, id)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		switch kind {
		case core.KindCertificate:
			if err = s.checkCertificate(r.Context(), id, *doc); err == nil {
				err = s.repo.StoreCertificate(r.Context(), id, *doc)
			}
		case core.KindDocument:
			err = s.repo.StoreDocument(r.Context(), id, *doc)
		case core.KindType:
			err = s.repo.StoreType(r.Context(), id, *doc)
		}
		if err != nil {
			s.fail(w, r, err)
			return
		}
		s.logger.Debug("stored", "kind", kind, "id", id)
		w.WriteHeader(http.StatusCreated)
	}
}

func (s *Server) handleSaveDraft(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	doc, err := s.readDocument(r, id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.repo.StoreDraft(r.Context(), id, *doc); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteDraft(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, _, err := core.ParseID(id); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.repo.DeleteDraft(r.Context(), id); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleQueueExists(w http.ResponseWriter, r *http.Request) {
	queue, err := queueParam(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	ok, err := s.repo.QueueExists(r.Context(), queue)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleCreateQueue(w http.ResponseWriter, r *http.Request) {
	queue, err := queueParam(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.repo.CreateQueue(r.Context(), queue); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (s *Server) handleDeleteQueue(w http.ResponseWriter, r *http.Request) {
	queue, err := queueParam(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.repo.DeleteQueue(r.Context(), queue); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleEnqueue files the posted message under its own tag.
func (s *Server) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	queue, err := queueParam(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	msg, err := s.readDocument(r, "")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.repo.QueueMessage(r.Context(), queue, string(msg.Tag), *msg); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

// handleDequeue claims one message on behalf of the caller.
func (s *Server) handleDequeue(w http.ResponseWriter, r *http.Request) {
	queue, err := queueParam(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	opts := core.ClaimOptions{Picker: s.picker, Logger: s.logger}
	if s.metrics != nil {
		opts.Observer = s.metrics
	}
	msg, err := core.ClaimMessage(r.Context(), s.repo, queue, opts)
	s.writeDocument(w, r, msg, err)
}

// --- helpers ---

func queueParam(r *http.Request) (string, error) {
	tag, err := core.ParseTag(chi.URLParam(r, "id"))
	if err != nil {
		return "", err
	}
	return string(tag), nil
}

// readDocument decodes the request body, requiring it to be named id when id is set.
func (s *Server) readDocument(r *http.Request, id string) (*core.Document, error) {
	if id != "" {
		if _, _, err := core.ParseID(id); err != nil {
			return nil, err
		}
	}
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read body: %v", core.ErrInvalidParameter, err)
	}
	doc, err := s.codec.Decode(data)
	if err != nil {
		return nil, err
	}
	if id != "" && doc.ID() != id {
		return nil, fmt.Errorf("%w: body is named %s, not %s", core.ErrInvalidParameter, doc.ID(), id)
	}
	return doc, nil
}

func (s *Server) writeDocument(w http.ResponseWriter, r *http.Request, doc *core.Document, err error) {
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if doc == nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	data, err := s.codec.Encode(*doc)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", s.codec.MediaType())
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// fail maps an error onto an HTTP status.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= 500 {
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	} else {
		s.logger.Debug("request rejected", "method", r.Method, "path", r.URL.Path, "status", status, "error", err)
	}
	http.Error(w, err.Error(), status)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, core.ErrAlreadyExists), errors.Is(err, core.ErrAlreadyCommitted):
		return http.StatusConflict
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrReadOnly):
		return http.StatusForbidden
	case errors.Is(err, core.ErrMalformedIdentifier), errors.Is(err, core.ErrInvalidParameter), errors.Is(err, core.ErrInvalidVersion):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrValidation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, core.ErrRepositoryUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// observe records request metrics under the kind segment of the path.
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		s.metrics.ObserveRequest(r.Method, kindOf(r.URL.Path), status, time.Since(start))
	})
}

func kindOf(path string) string {
	for _, kind := range []string{core.KindCertificate, core.KindDraft, core.KindDocument, core.KindType, core.KindQueue} {
		prefix := "/" + kind + "/"
		if len(path) > len(prefix) && path[:len(prefix)] == prefix {
			return kind
		}
	}
	return "other"
}

var _ http.Handler = (*Server)(nil)
