// Package remote implements core.Repository against a nebula HTTP server.
//
// Every resource lives at /<kind>/<identifier>. A 404 maps to "absent", a 409
// to core.ErrAlreadyExists, and transport failures or 5xx responses to
// core.ErrRepositoryUnavailable. Requests pass through a circuit breaker so a
// dead server fails fast instead of stalling every caller for the full timeout.
package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/aretw0/nebula/pkg/codec"
	"github.com/aretw0/nebula/pkg/core"
)

// DefaultTimeout bounds every request.
const DefaultTimeout = 10 * time.Second

// maxBody caps response bodies read into memory.
const maxBody = 16 << 20

// CredentialsFunc returns a freshly notarized credentials document.
type CredentialsFunc func(ctx context.Context) (core.Document, error)

// BreakerConfig holds the circuit breaker settings.
type BreakerConfig struct {
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold float64
	MinRequests      uint32
}

// DefaultBreakerConfig returns the breaker settings used when none are given.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxRequests:      3,
		Interval:         30 * time.Second,
		Timeout:          15 * time.Second,
		FailureThreshold: 0.6,
		MinRequests:      5,
	}
}

// Config holds the configuration for the remote repository.
type Config struct {
	URL         string
	Timeout     time.Duration
	Codec       core.Codec
	Credentials CredentialsFunc
	Logger      *slog.Logger
	Breaker     *BreakerConfig
	Client      *http.Client
}

// Repository is a core.Repository backed by a remote server.
type Repository struct {
	base        *url.URL
	client      *http.Client
	codec       core.Codec
	credentials CredentialsFunc
	logger      *slog.Logger
	breaker     *gobreaker.CircuitBreaker
}

// NewRepository creates a remote repository for the server at config.URL.
func NewRepository(config Config) (*Repository, error) {
	if config.URL == "" {
		return nil, fmt.Errorf("%w: remote repository requires a URL", core.ErrInvalidParameter)
	}
	base, err := url.Parse(strings.TrimSuffix(config.URL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("%w: invalid repository URL %q", core.ErrInvalidParameter, config.URL)
	}
	if config.Codec == nil {
		config.Codec = codec.New()
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	client := config.Client
	if client == nil {
		client = &http.Client{Timeout: config.Timeout}
	}
	bc := DefaultBreakerConfig()
	if config.Breaker != nil {
		bc = *config.Breaker
	}

	r := &Repository{
		base:        base,
		client:      client,
		codec:       config.Codec,
		credentials: config.Credentials,
		logger:      config.Logger,
	}
	r.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "nebula-remote:" + base.Host,
		MaxRequests: bc.MaxRequests,
		Interval:    bc.Interval,
		Timeout:     bc.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < bc.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= bc.FailureThreshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			if r.logger != nil {
				r.logger.Warn("circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
			}
		},
	})
	return r, nil
}

// Initialize checks that the server answers.
func (r *Repository) Initialize(ctx context.Context) error {
	resp, err := r.do(ctx, http.MethodGet, "/health", nil)
	if err != nil {
		return err
	}
	if resp.status != http.StatusOK {
		return fmt.Errorf("%w: health check returned %d", core.ErrRepositoryUnavailable, resp.status)
	}
	return nil
}

// --- Certificates ---

func (r *Repository) CertificateExists(ctx context.Context, id string) (bool, error) {
	return r.exists(ctx, core.KindCertificate, id)
}

func (r *Repository) FetchCertificate(ctx context.Context, id string) (*core.Document, error) {
	return r.fetch(ctx, core.KindCertificate, id)
}

func (r *Repository) StoreCertificate(ctx context.Context, id string, cert core.Document) error {
	return r.store(ctx, core.KindCertificate, id, cert)
}

// --- Drafts ---

func (r *Repository) DraftExists(ctx context.Context, id string) (bool, error) {
	return r.exists(ctx, core.KindDraft, id)
}

func (r *Repository) FetchDraft(ctx context.Context, id string) (*core.Document, error) {
	return r.fetch(ctx, core.KindDraft, id)
}

func (r *Repository) StoreDraft(ctx context.Context, id string, draft core.Document) error {
	return r.store(ctx, core.KindDraft, id, draft)
}

func (r *Repository) DeleteDraft(ctx context.Context, id string) error {
	return r.remove(ctx, core.KindDraft, id)
}

// --- Documents ---

func (r *Repository) DocumentExists(ctx context.Context, id string) (bool, error) {
	return r.exists(ctx, core.KindDocument, id)
}

func (r *Repository) FetchDocument(ctx context.Context, id string) (*core.Document, error) {
	return r.fetch(ctx, core.KindDocument, id)
}

func (r *Repository) StoreDocument(ctx context.Context, id string, doc core.Document) error {
	return r.store(ctx, core.KindDocument, id, doc)
}

// --- Types ---

func (r *Repository) TypeExists(ctx context.Context, id string) (bool, error) {
	return r.exists(ctx, core.KindType, id)
}

func (r *Repository) FetchType(ctx context.Context, id string) (*core.Document, error) {
	return r.fetch(ctx, core.KindType, id)
}

func (r *Repository) StoreType(ctx context.Context, id string, typ core.Document) error {
	return r.store(ctx, core.KindType, id, typ)
}

// --- Queues ---

func (r *Repository) QueueExists(ctx context.Context, queue string) (bool, error) {
	return r.exists(ctx, core.KindQueue, queue)
}

func (r *Repository) CreateQueue(ctx context.Context, queue string) error {
	resp, err := r.do(ctx, http.MethodPut, resourcePath(core.KindQueue, queue), nil)
	if err != nil {
		return err
	}
	return resp.expect(http.StatusCreated, http.StatusNoContent, http.StatusOK)
}

func (r *Repository) DeleteQueue(ctx context.Context, queue string) error {
	return r.remove(ctx, core.KindQueue, queue)
}

// QueueMessage posts message to queue. The server files the entry under the
// message tag, so name must equal it.
func (r *Repository) QueueMessage(ctx context.Context, queue, name string, message core.Document) error {
	if name != string(message.Tag) {
		return fmt.Errorf("%w: remote queue entries are named by message tag", core.ErrInvalidParameter)
	}
	return r.store(ctx, core.KindQueue, queue, message)
}

// ListMessages is not exposed by the server; receivers claim through DequeueMessage.
func (r *Repository) ListMessages(ctx context.Context, queue string) ([]string, error) {
	return nil, errUnsupported("list messages")
}

func (r *Repository) FetchMessage(ctx context.Context, queue, name string) (*core.Document, error) {
	return nil, errUnsupported("fetch message")
}

func (r *Repository) DeleteMessage(ctx context.Context, queue, name string) error {
	return errUnsupported("delete message")
}

// DequeueMessage asks the server to claim one message, returning nil when the queue is empty.
func (r *Repository) DequeueMessage(ctx context.Context, queue string) (*core.Document, error) {
	return r.fetch(ctx, core.KindQueue, queue)
}

// --- transport ---

type response struct {
	status int
	body   []byte
}

func (resp response) expect(codes ...int) error {
	for _, code := range codes {
		if resp.status == code {
			return nil
		}
	}
	return statusError(resp)
}

// statusError maps a non-success response onto the core error sentinels.
func statusError(resp response) error {
	msg := strings.TrimSpace(string(resp.body))
	switch resp.status {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", core.ErrNotFound, msg)
	case http.StatusConflict:
		return fmt.Errorf("%w: %s", core.ErrAlreadyExists, msg)
	case http.StatusUnauthorized, http.StatusUnprocessableEntity:
		return fmt.Errorf("%w: server rejected request: %s", core.ErrValidation, msg)
	case http.StatusForbidden:
		return fmt.Errorf("%w: %s", core.ErrReadOnly, msg)
	case http.StatusBadRequest, http.StatusMethodNotAllowed:
		return fmt.Errorf("%w: server returned %d: %s", core.ErrInvalidParameter, resp.status, msg)
	}
	return fmt.Errorf("%w: server returned %d: %s", core.ErrRepositoryUnavailable, resp.status, msg)
}

func resourcePath(kind, id string) string {
	return "/" + kind + "/" + url.PathEscape(id)
}

func (r *Repository) exists(ctx context.Context, kind, id string) (bool, error) {
	resp, err := r.do(ctx, http.MethodHead, resourcePath(kind, id), nil)
	if err != nil {
		return false, err
	}
	switch resp.status {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	}
	return false, statusError(resp)
}

func (r *Repository) fetch(ctx context.Context, kind, id string) (*core.Document, error) {
	resp, err := r.do(ctx, http.MethodGet, resourcePath(kind, id), nil)
	if err != nil {
		return nil, err
	}
	switch resp.status {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, nil
	default:
		return nil, statusError(resp)
	}
	doc, err := r.codec.Decode(resp.body)
	if err != nil {
		return nil, fmt.Errorf("decode %s %s: %w", kind, id, err)
	}
	return doc, nil
}

func (r *Repository) store(ctx context.Context, kind, id string, doc core.Document) error {
	body, err := r.codec.Encode(doc)
	if err != nil {
		return err
	}
	resp, err := r.do(ctx, http.MethodPost, resourcePath(kind, id), body)
	if err != nil {
		return err
	}
	return resp.expect(http.StatusCreated, http.StatusNoContent, http.StatusOK)
}

func (r *Repository) remove(ctx context.Context, kind, id string) error {
	resp, err := r.do(ctx, http.MethodDelete, resourcePath(kind, id), nil)
	if err != nil {
		return err
	}
	if resp.status == http.StatusNotFound {
		return nil
	}
	return resp.expect(http.StatusNoContent, http.StatusOK)
}

// do sends one request through the circuit breaker. Only transport failures
// and 5xx responses count against the breaker.
func (r *Repository) do(ctx context.Context, method, path string, body []byte) (response, error) {
	header, err := r.credentialsHeader(ctx)
	if err != nil {
		return response{}, err
	}

	result, err := r.breaker.Execute(func() (any, error) {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, r.base.String()+path, reader)
		if err != nil {
			return nil, err
		}
		if body != nil {
			req.Header.Set("Content-Type", r.codec.MediaType())
		}
		req.Header.Set("Accept", r.codec.MediaType())
		if header != "" {
			req.Header.Set(codec.CredentialsHeader, header)
		}

		res, err := r.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer res.Body.Close()

		data, err := io.ReadAll(io.LimitReader(res.Body, maxBody))
		if err != nil {
			return nil, err
		}
		resp := response{status: res.StatusCode, body: data}
		if res.StatusCode >= 500 {
			return resp, fmt.Errorf("server returned %d", res.StatusCode)
		}
		return resp, nil
	})

	if r.logger != nil {
		r.logger.Debug("remote request", "method", method, "path", path, "error", err)
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return response{}, ctxErr
		}
		if resp, ok := result.(response); ok {
			return response{}, statusError(resp)
		}
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return response{}, fmt.Errorf("%w: %v", core.ErrRepositoryUnavailable, err)
		}
		return response{}, fmt.Errorf("%w: %s %s: %v", core.ErrRepositoryUnavailable, method, path, err)
	}
	return result.(response), nil
}

func (r *Repository) credentialsHeader(ctx context.Context) (string, error) {
	if r.credentials == nil {
		return "", nil
	}
	creds, err := r.credentials(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to notarize credentials: %w", err)
	}
	return codec.EncodeHeader(r.codec, creds)
}

func errUnsupported(op string) error {
	return fmt.Errorf("%w: %s is not supported by remote repositories", core.ErrInvalidParameter, op)
}

// BreakerState reports the circuit breaker state ("closed", "half-open" or "open").
func (r *Repository) BreakerState() string {
	return r.breaker.State().String()
}

var (
	_ core.Repository = (*Repository)(nil)
	_ core.Dequeuer   = (*Repository)(nil)
)
