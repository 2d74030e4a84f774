package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Namespaces of the repository, also used as cache kinds.
const (
	KindCertificate = "certificate"
	KindDraft       = "draft"
	KindDocument    = "document"
	KindType        = "type"
	KindQueue       = "queue"
)

// DefaultPollInterval is how often AwaitMessage re-checks a queue that cannot be watched.
const DefaultPollInterval = 500 * time.Millisecond

// Service handles the lifecycle of drafts, documents, types, certificates and messages.
type Service struct {
	repo     Repository
	notary   Notary
	codec    Codec
	cache    *Cache
	logger   *slog.Logger
	observer Observer
	picker   Picker
	poll     time.Duration
	readOnly bool

	mu sync.RWMutex
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithCache shares an existing cache with the service.
func WithCache(c *Cache) ServiceOption {
	return func(s *Service) {
		s.cache = c
	}
}

// WithServiceLogger sets the logger for the service.
func WithServiceLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithObserver registers an observer for cache, claim and validation counters.
func WithObserver(o Observer) ServiceOption {
	return func(s *Service) {
		s.observer = o
	}
}

// WithPicker overrides the queue member selection policy.
func WithPicker(p Picker) ServiceOption {
	return func(s *Service) {
		s.picker = p
	}
}

// WithPollInterval sets how often AwaitMessage polls when the repository cannot be watched.
func WithPollInterval(d time.Duration) ServiceOption {
	return func(s *Service) {
		s.poll = d
	}
}

// WithServiceReadOnly rejects every write with ErrReadOnly.
func WithServiceReadOnly(readOnly bool) ServiceOption {
	return func(s *Service) {
		s.readOnly = readOnly
	}
}

// NewService creates a new Service.
func NewService(repo Repository, notary Notary, codec Codec, opts ...ServiceOption) *Service {
	s := &Service{
		repo:     repo,
		notary:   notary,
		codec:    codec,
		logger:   slog.New(slog.DiscardHandler),
		observer: nopObserver{},
		picker:   RandomPicker,
		poll:     DefaultPollInterval,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.cache == nil {
		s.cache = NewCache(DefaultCacheCapacity)
	}
	if s.observer == nil {
		s.observer = nopObserver{}
	}
	s.cache.SetObserver(s.observer)
	return s
}

// Repository returns the underlying repository.
func (s *Service) Repository() Repository {
	return s.repo
}

// Cache returns the document cache owned by the service.
func (s *Service) Cache() *Cache {
	return s.cache
}

// --- Documents ---

// RetrieveDocument returns the committed document named by citation, or nil if it does not exist.
// Documents are validated before they are cached; a digest in the citation must match.
func (s *Service) RetrieveDocument(ctx context.Context, citation Citation) (*Document, error) {
	return s.retrieve(ctx, KindDocument, citation)
}

// CheckoutDocument creates a draft of version newVersion from the document named by citation.
func (s *Service) CheckoutDocument(ctx context.Context, citation Citation, newVersion Version) (*Document, error) {
	if err := s.writable(); err != nil {
		return nil, err
	}
	if !IsValidNext(citation.Version, newVersion) {
		return nil, fmt.Errorf("%w: %s is not a successor of %s", ErrInvalidVersion, newVersion, citation.Version)
	}

	targetID := ComposeID(citation.Tag, newVersion)
	exists, err := s.repo.DocumentExists(ctx, targetID)
	if err != nil {
		return nil, err
	}
	if !exists {
		if exists, err = s.repo.DraftExists(ctx, targetID); err != nil {
			return nil, err
		}
	}
	if exists {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyExists, targetID)
	}

	source, err := s.RetrieveDocument(ctx, citation)
	if err != nil {
		return nil, err
	}
	if source == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, citation)
	}

	previous := citation.Clone()
	if previous.Digest == "" {
		if previous.Digest, err = Digest(s.codec, *source); err != nil {
			return nil, err
		}
	}

	draft := source.WithoutLastSeal()
	draft.Version = newVersion.Clone()
	draft.Previous = &previous
	if len(draft.Seals) > 0 {
		// Earlier seals cover the old version and will not verify on the new one.
		s.logger.Warn("checked out a counter-signed document; remove its remaining seals before committing",
			"source", citation.String(), "draft", targetID, "seals", len(draft.Seals))
	}

	if err := s.repo.StoreDraft(ctx, targetID, draft); err != nil {
		return nil, err
	}
	s.logger.Debug("checked out document", "source", citation.String(), "draft", targetID)
	return &draft, nil
}

// --- Drafts ---

// SaveDraft creates or replaces the draft at id.
func (s *Service) SaveDraft(ctx context.Context, id string, draft Document) error {
	if err := s.writable(); err != nil {
		return err
	}
	draft, err := bindID(id, draft)
	if err != nil {
		return err
	}
	if err := s.ensureUncommitted(ctx, KindDocument, id); err != nil {
		return err
	}
	return s.repo.StoreDraft(ctx, id, draft)
}

// RetrieveDraft returns the draft at id, or nil if there is none. Drafts are never cached.
func (s *Service) RetrieveDraft(ctx context.Context, id string) (*Document, error) {
	if _, _, err := ParseID(id); err != nil {
		return nil, err
	}
	if s.cache.Contains(KindDocument, id) {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyCommitted, id)
	}
	draft, err := s.repo.FetchDraft(ctx, id)
	if err != nil || draft == nil {
		return nil, err
	}
	if draft.ID() != id {
		return nil, fmt.Errorf("%w: draft at %s is named %s", ErrValidation, id, draft.ID())
	}
	return draft, nil
}

// DiscardDraft removes the draft at id. A missing draft is not an error.
func (s *Service) DiscardDraft(ctx context.Context, id string) error {
	if err := s.writable(); err != nil {
		return err
	}
	if _, _, err := ParseID(id); err != nil {
		return err
	}
	return s.repo.DeleteDraft(ctx, id)
}

// CommitDraft seals draft, stores it as the immutable document id and removes the draft slot.
// The new document is cached on its first retrieval, not here.
func (s *Service) CommitDraft(ctx context.Context, id string, draft Document) (Citation, error) {
	citation, err := s.commit(ctx, KindDocument, id, draft)
	if err != nil {
		return Citation{}, err
	}
	if err := s.repo.DeleteDraft(ctx, id); err != nil {
		return citation, fmt.Errorf("committed %s but failed to remove draft: %w", id, err)
	}
	s.logger.Info("committed document", "id", id)
	return citation, nil
}

// --- Types ---

// RetrieveType returns the committed type named by citation, or nil if it does not exist.
func (s *Service) RetrieveType(ctx context.Context, citation Citation) (*Document, error) {
	return s.retrieve(ctx, KindType, citation)
}

// CommitType seals typ and stores it as the immutable type id.
func (s *Service) CommitType(ctx context.Context, id string, typ Document) (Citation, error) {
	citation, err := s.commit(ctx, KindType, id, typ)
	if err != nil {
		return Citation{}, err
	}
	s.logger.Info("committed type", "id", id)
	return citation, nil
}

// --- Certificates ---

// RetrieveCertificate returns the certificate named by citation, or nil if it does not exist.
func (s *Service) RetrieveCertificate(ctx context.Context, citation Citation) (*Document, error) {
	return s.retrieve(ctx, KindCertificate, citation)
}

// PublishCertificate validates an already sealed certificate and stores it.
func (s *Service) PublishCertificate(ctx context.Context, certificate Document) (Citation, error) {
	if err := s.writable(); err != nil {
		return Citation{}, err
	}
	id := certificate.ID()
	if _, _, err := ParseID(id); err != nil {
		return Citation{}, err
	}
	if len(certificate.Seals) == 0 {
		return Citation{}, fmt.Errorf("%w: certificate %s carries no seal", ErrInvalidParameter, id)
	}
	if err := s.validate(ctx, KindCertificate, id, certificate); err != nil {
		return Citation{}, err
	}
	if err := s.repo.StoreCertificate(ctx, id, certificate); err != nil {
		return Citation{}, err
	}
	return s.cite(certificate)
}

// --- Queues ---

// QueueMessage notarizes message under a fresh tag and places it on queue.
func (s *Service) QueueMessage(ctx context.Context, queue Tag, message Document) (Tag, error) {
	if err := s.writable(); err != nil {
		return "", err
	}
	msg := message.Clone()
	msg.Tag = NewTag()
	msg.Version = Version{1}
	msg.Seals = nil
	if msg.Type == "" {
		msg.Type = TypeMessage
	}

	seal, err := s.notary.Sign(ctx, msg)
	if err != nil {
		return "", fmt.Errorf("notarize message: %w", err)
	}
	msg = msg.WithSeal(seal)

	if err := s.repo.QueueMessage(ctx, string(queue), string(msg.Tag), msg); err != nil {
		return "", err
	}
	s.logger.Debug("queued message", "queue", string(queue), "message", string(msg.Tag))
	return msg.Tag, nil
}

// ReceiveMessage claims one message from queue, or returns nil if the queue is empty.
// The message is removed from the queue before its seals are checked, so a
// read-only service may not receive.
func (s *Service) ReceiveMessage(ctx context.Context, queue Tag) (*Document, error) {
	if err := s.writable(); err != nil {
		return nil, err
	}
	var (
		msg *Document
		err error
	)
	if d, ok := s.repo.(Dequeuer); ok {
		msg, err = d.DequeueMessage(ctx, string(queue))
	} else {
		msg, err = ClaimMessage(ctx, s.repo, string(queue), ClaimOptions{
			Picker:   s.picker,
			Logger:   s.logger,
			Observer: s.observer,
		})
	}
	if err != nil || msg == nil {
		return nil, err
	}

	if err := s.validate(ctx, KindQueue, msg.ID(), *msg); err != nil {
		s.logger.Warn("rejected message", "queue", string(queue), "message", msg.ID(), "error", err)
		return nil, err
	}
	return msg, nil
}

// AwaitMessage blocks until a message is claimed from queue or ctx is done.
// A queue watch opened while waiting is closed before it returns.
func (s *Service) AwaitMessage(ctx context.Context, queue Tag) (*Document, error) {
	watchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var events <-chan Event
	watched := false
	for {
		msg, err := s.ReceiveMessage(ctx, queue)
		if err != nil || msg != nil {
			return msg, err
		}

		if !watched {
			watched = true
			if w, ok := s.repo.(Watchable); ok {
				if events, err = w.Watch(watchCtx, string(queue)); err != nil {
					s.logger.Warn("queue watch unavailable, polling", "queue", string(queue), "error", err)
					events = nil
				}
			}
		}

		timer := time.NewTimer(s.poll)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case _, ok := <-events:
			if !ok {
				events = nil
			}
		case <-timer.C:
		}
		timer.Stop()
	}
}

// PublishEvent queues event on the well-known event queue.
func (s *Service) PublishEvent(ctx context.Context, event Document) (Tag, error) {
	if event.Type == "" {
		event.Type = TypeEvent
	}
	return s.QueueMessage(ctx, EventQueue, event)
}

// SendMessage stamps message with its target citation and queues it on the well-known send queue.
func (s *Service) SendMessage(ctx context.Context, target Citation, message Document) (Tag, error) {
	msg := message.Clone()
	if msg.Attributes == nil {
		msg.Attributes = make(Metadata)
	}
	msg.Attributes[TargetKey] = target.String()
	return s.QueueMessage(ctx, SendQueue, msg)
}

// --- internals ---

func (s *Service) writable() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.readOnly {
		return ErrReadOnly
	}
	return nil
}

// bindID fills a missing tag or version from id and rejects a document named differently.
func bindID(id string, doc Document) (Document, error) {
	tag, version, err := ParseID(id)
	if err != nil {
		return Document{}, err
	}
	doc = doc.Clone()
	if doc.Tag == "" {
		doc.Tag = tag
	}
	if len(doc.Version) == 0 {
		doc.Version = version
	}
	if doc.ID() != id {
		return Document{}, fmt.Errorf("%w: document %s saved as %s", ErrInvalidParameter, doc.ID(), id)
	}
	return doc, nil
}

func (s *Service) ensureUncommitted(ctx context.Context, kind, id string) error {
	exists, err := s.exists(ctx, kind, id)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: %s", ErrAlreadyCommitted, id)
	}
	return nil
}

func (s *Service) commit(ctx context.Context, kind, id string, draft Document) (Citation, error) {
	if err := s.writable(); err != nil {
		return Citation{}, err
	}
	draft, err := bindID(id, draft)
	if err != nil {
		return Citation{}, err
	}
	if err := s.ensureUncommitted(ctx, kind, id); err != nil {
		return Citation{}, err
	}

	seal, err := s.notary.Sign(ctx, draft)
	if err != nil {
		return Citation{}, fmt.Errorf("notarize %s: %w", id, err)
	}
	doc := draft.WithSeal(seal)

	if err := s.store(ctx, kind, id, doc); err != nil {
		if errors.Is(err, ErrAlreadyExists) {
			return Citation{}, fmt.Errorf("%w: %s", ErrAlreadyCommitted, id)
		}
		return Citation{}, err
	}
	return s.cite(doc)
}

func (s *Service) cite(doc Document) (Citation, error) {
	digest, err := Digest(s.codec, doc)
	if err != nil {
		return Citation{}, err
	}
	c := doc.Citation()
	c.Digest = digest
	return c, nil
}

func (s *Service) retrieve(ctx context.Context, kind string, citation Citation) (*Document, error) {
	id := citation.ID()
	if _, _, err := ParseID(id); err != nil {
		return nil, err
	}
	doc, err := s.cache.Fetch(ctx, kind, id, func(ctx context.Context) (*Document, error) {
		doc, err := s.fetch(ctx, kind, id)
		if err != nil || doc == nil {
			return nil, err
		}
		if err := s.validate(ctx, kind, id, *doc); err != nil {
			s.logger.Warn("rejected fetched content", "kind", kind, "id", id, "error", err)
			return nil, err
		}
		return doc, nil
	})
	if err != nil || doc == nil {
		return nil, err
	}
	if citation.Digest != "" {
		digest, err := Digest(s.codec, *doc)
		if err != nil {
			return nil, err
		}
		if digest != citation.Digest {
			return nil, fmt.Errorf("%w: digest of %s does not match citation", ErrValidation, id)
		}
	}
	return doc, nil
}

// validate checks that doc is named id and that its seal chain verifies.
func (s *Service) validate(ctx context.Context, kind, id string, doc Document) error {
	if doc.ID() != id {
		s.observer.SealsValidated(kind, false)
		return fmt.Errorf("%w: content at %s is named %s", ErrValidation, id, doc.ID())
	}
	err := ValidateSeals(ctx, id, doc, s.resolveCertificate, s.notary)
	s.observer.SealsValidated(kind, err == nil)
	return err
}

type resolvingKey struct{}

// resolveCertificate fetches a signer certificate through the cache, refusing citation cycles.
func (s *Service) resolveCertificate(ctx context.Context, citation Citation) (*Document, error) {
	id := citation.ID()
	seen, _ := ctx.Value(resolvingKey{}).(map[string]bool)
	if seen[id] {
		return nil, fmt.Errorf("%w: certificate cycle at %s", ErrValidation, id)
	}
	next := make(map[string]bool, len(seen)+1)
	for k := range seen {
		next[k] = true
	}
	next[id] = true
	return s.retrieve(context.WithValue(ctx, resolvingKey{}, next), KindCertificate, citation)
}

func (s *Service) exists(ctx context.Context, kind, id string) (bool, error) {
	switch kind {
	case KindCertificate:
		return s.repo.CertificateExists(ctx, id)
	case KindDocument:
		return s.repo.DocumentExists(ctx, id)
	case KindType:
		return s.repo.TypeExists(ctx, id)
	case KindDraft:
		return s.repo.DraftExists(ctx, id)
	}
	return false, fmt.Errorf("%w: unknown kind %q", ErrInvalidParameter, kind)
}

func (s *Service) fetch(ctx context.Context, kind, id string) (*Document, error) {
	switch kind {
	case KindCertificate:
		return s.repo.FetchCertificate(ctx, id)
	case KindDocument:
		return s.repo.FetchDocument(ctx, id)
	case KindType:
		return s.repo.FetchType(ctx, id)
	}
	return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidParameter, kind)
}

func (s *Service) store(ctx context.Context, kind, id string, doc Document) error {
	switch kind {
	case KindCertificate:
		return s.repo.StoreCertificate(ctx, id, doc)
	case KindDocument:
		return s.repo.StoreDocument(ctx, id, doc)
	case KindType:
		return s.repo.StoreType(ctx, id, doc)
	}
	return fmt.Errorf("%w: unknown kind %q", ErrInvalidParameter, kind)
}
