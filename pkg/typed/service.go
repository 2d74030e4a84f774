package typed

import (
	"context"

	"github.com/aretw0/nebula/pkg/core"
)

// Service wraps a core.Service to provide type-safe access to drafts and documents.
type Service[T any] struct {
	svc *core.Service
}

// NewService creates a new typed service wrapper.
func NewService[T any](svc *core.Service) *Service[T] {
	return &Service[T]{svc: svc}
}

// New returns an empty version 1 draft of a fresh lineage, attached to the service.
func (s *Service[T]) New(docType string, data T) *DocumentModel[T] {
	return &DocumentModel[T]{
		Type:    docType,
		Tag:     core.NewTag(),
		Version: core.Version{1},
		Data:    data,
		Saver:   s,
	}
}

// Save stores doc as a draft.
func (s *Service[T]) Save(ctx context.Context, doc *DocumentModel[T]) error {
	if doc.Saver == nil {
		doc.Saver = s
	}
	coreDoc, err := toCore(doc)
	if err != nil {
		return err
	}
	return s.svc.SaveDraft(ctx, doc.ID(), coreDoc)
}

// Draft retrieves the draft stored under id, or nil.
func (s *Service[T]) Draft(ctx context.Context, id string) (*DocumentModel[T], error) {
	doc, err := s.svc.RetrieveDraft(ctx, id)
	if err != nil || doc == nil {
		return nil, err
	}
	return fromCore(doc, s)
}

// Commit notarizes doc and returns the citation of the committed document.
func (s *Service[T]) Commit(ctx context.Context, doc *DocumentModel[T]) (core.Citation, error) {
	coreDoc, err := toCore(doc)
	if err != nil {
		return core.Citation{}, err
	}
	return s.svc.CommitDraft(ctx, doc.ID(), coreDoc)
}

// Retrieve returns the committed document named by citation, or nil.
func (s *Service[T]) Retrieve(ctx context.Context, citation core.Citation) (*DocumentModel[T], error) {
	doc, err := s.svc.RetrieveDocument(ctx, citation)
	if err != nil || doc == nil {
		return nil, err
	}
	return fromCore(doc, s)
}

// Checkout starts a draft of the next version from a committed document.
func (s *Service[T]) Checkout(ctx context.Context, citation core.Citation, version core.Version) (*DocumentModel[T], error) {
	doc, err := s.svc.CheckoutDocument(ctx, citation, version)
	if err != nil {
		return nil, err
	}
	return fromCore(doc, s)
}
