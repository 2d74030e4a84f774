// Package memory implements core.Repository in process memory.
// It backs tests and short-lived tools, and is safe for concurrent use.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/aretw0/nebula/pkg/core"
)

// Repository is an in-memory implementation of core.Repository backed by maps.
type Repository struct {
	mu           sync.RWMutex
	certificates map[string]core.Document
	drafts       map[string]core.Document
	documents    map[string]core.Document
	types        map[string]core.Document
	queues       map[string]map[string]core.Document
}

// NewRepository creates a new, empty Repository.
func NewRepository() *Repository {
	return &Repository{
		certificates: make(map[string]core.Document),
		drafts:       make(map[string]core.Document),
		documents:    make(map[string]core.Document),
		types:        make(map[string]core.Document),
		queues:       make(map[string]map[string]core.Document),
	}
}

// Initialize implements core.Repository.
func (r *Repository) Initialize(ctx context.Context) error { return nil }

func (r *Repository) has(m map[string]core.Document, id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := m[id]
	return ok
}

// get returns a copy so callers cannot mutate the stored data.
func (r *Repository) get(m map[string]core.Document, id string) *core.Document {
	r.mu.RLock()
	defer r.mu.RUnlock()
	doc, ok := m[id]
	if !ok {
		return nil
	}
	c := doc.Clone()
	return &c
}

func (r *Repository) create(m map[string]core.Document, kind, id string, doc core.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := m[id]; ok {
		return fmt.Errorf("%w: %s %s", core.ErrAlreadyExists, kind, id)
	}
	m[id] = doc.Clone()
	return nil
}

func (r *Repository) CertificateExists(ctx context.Context, id string) (bool, error) {
	return r.has(r.certificates, id), nil
}

func (r *Repository) FetchCertificate(ctx context.Context, id string) (*core.Document, error) {
	return r.get(r.certificates, id), nil
}

func (r *Repository) StoreCertificate(ctx context.Context, id string, cert core.Document) error {
	return r.create(r.certificates, core.KindCertificate, id, cert)
}

func (r *Repository) DraftExists(ctx context.Context, id string) (bool, error) {
	return r.has(r.drafts, id), nil
}

func (r *Repository) FetchDraft(ctx context.Context, id string) (*core.Document, error) {
	return r.get(r.drafts, id), nil
}

func (r *Repository) StoreDraft(ctx context.Context, id string, draft core.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.drafts[id] = draft.Clone()
	return nil
}

func (r *Repository) DeleteDraft(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.drafts, id)
	return nil
}

func (r *Repository) DocumentExists(ctx context.Context, id string) (bool, error) {
	return r.has(r.documents, id), nil
}

func (r *Repository) FetchDocument(ctx context.Context, id string) (*core.Document, error) {
	return r.get(r.documents, id), nil
}

func (r *Repository) StoreDocument(ctx context.Context, id string, doc core.Document) error {
	return r.create(r.documents, core.KindDocument, id, doc)
}

func (r *Repository) TypeExists(ctx context.Context, id string) (bool, error) {
	return r.has(r.types, id), nil
}

func (r *Repository) FetchType(ctx context.Context, id string) (*core.Document, error) {
	return r.get(r.types, id), nil
}

func (r *Repository) StoreType(ctx context.Context, id string, typ core.Document) error {
	return r.create(r.types, core.KindType, id, typ)
}

func (r *Repository) QueueExists(ctx context.Context, queue string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.queues[queue]
	return ok, nil
}

func (r *Repository) CreateQueue(ctx context.Context, queue string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.queues[queue]; !ok {
		r.queues[queue] = make(map[string]core.Document)
	}
	return nil
}

func (r *Repository) DeleteQueue(ctx context.Context, queue string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.queues, queue)
	return nil
}

func (r *Repository) QueueMessage(ctx context.Context, queue, name string, message core.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	q, ok := r.queues[queue]
	if !ok {
		q = make(map[string]core.Document)
		r.queues[queue] = q
	}
	if _, ok := q[name]; ok {
		return fmt.Errorf("%w: message %s/%s", core.ErrAlreadyExists, queue, name)
	}
	q[name] = message.Clone()
	return nil
}

// ListMessages returns entry names sorted for deterministic tests.
func (r *Repository) ListMessages(ctx context.Context, queue string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.queues[queue]))
	for name := range r.queues[queue] {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (r *Repository) FetchMessage(ctx context.Context, queue, name string) (*core.Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	msg, ok := r.queues[queue][name]
	if !ok {
		return nil, nil
	}
	c := msg.Clone()
	return &c, nil
}

func (r *Repository) DeleteMessage(ctx context.Context, queue, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	q := r.queues[queue]
	if _, ok := q[name]; !ok {
		return fmt.Errorf("%w: message %s/%s", core.ErrNotFound, queue, name)
	}
	delete(q, name)
	return nil
}

// ComponentType implements introspection.Component.
func (r *Repository) ComponentType() string {
	return "memory-repository"
}

var _ core.Repository = (*Repository)(nil)
