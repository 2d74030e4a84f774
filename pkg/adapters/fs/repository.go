// Package fs implements core.Repository on the local filesystem.
//
// Layout under the root directory (mode 0700):
//
//	certificates/<id>.bali   read-only once written
//	documents/<id>.bali      read-only once written
//	types/<id>.bali          read-only once written
//	drafts/<id>.bali         read-write
//	queues/<queue>/<tag>.bali one file per pending message
package fs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aretw0/nebula/pkg/core"
	"github.com/bmatcuk/doublestar/v4"
)

// Extension is the file extension of stored documents.
const Extension = ".bali"

// Subdirectories of the repository root.
const (
	CertificatesDir = "certificates"
	DraftsDir       = "drafts"
	DocumentsDir    = "documents"
	TypesDir        = "types"
	QueuesDir       = "queues"
)

const (
	dirPerm       os.FileMode = 0700
	committedPerm os.FileMode = 0400
	draftPerm     os.FileMode = 0600
	messagePerm   os.FileMode = 0600
)

// Repository implements core.Repository using the filesystem.
type Repository struct {
	Path   string
	config Config
	codec  core.Codec
	index  *index

	mu          sync.RWMutex
	watchers    int
	lastListing *time.Time
	readOnly    bool
}

// Config holds the configuration for the filesystem repository.
type Config struct {
	Path      string
	MustExist bool
	ReadOnly  bool
	Logger    *slog.Logger
	Codec     core.Codec
	SystemDir string // e.g. ".nebula"
	// ErrorHandler receives errors raised inside watcher goroutines.
	ErrorHandler func(error)
}

// NewRepository creates a new filesystem-backed repository.
func NewRepository(config Config) *Repository {
	if config.SystemDir == "" {
		config.SystemDir = ".nebula"
	}
	return &Repository{
		Path:     config.Path,
		config:   config,
		codec:    config.Codec,
		index:    newIndex(config.Path, config.SystemDir),
		readOnly: config.ReadOnly,
	}
}

// Initialize creates the root and its subdirectories with owner-only permissions.
func (r *Repository) Initialize(ctx context.Context) error {
	if r.codec == nil {
		return fmt.Errorf("fs repository requires a codec")
	}

	if r.config.MustExist || r.readOnly {
		info, err := os.Stat(r.Path)
		if os.IsNotExist(err) {
			return fmt.Errorf("repository path does not exist: %s", r.Path)
		}
		if err != nil {
			return fmt.Errorf("%w: %v", core.ErrRepositoryUnavailable, err)
		}
		if !info.IsDir() {
			return fmt.Errorf("repository path is not a directory: %s", r.Path)
		}
	}
	if r.readOnly {
		return nil
	}

	if err := os.MkdirAll(r.Path, dirPerm); err != nil {
		return fmt.Errorf("failed to create repository directory: %w", err)
	}
	if err := os.Chmod(r.Path, dirPerm); err != nil {
		return fmt.Errorf("failed to restrict repository directory: %w", err)
	}
	for _, dir := range []string{r.config.SystemDir, CertificatesDir, DraftsDir, DocumentsDir, TypesDir, QueuesDir} {
		if err := os.MkdirAll(filepath.Join(r.Path, dir), dirPerm); err != nil {
			return fmt.Errorf("failed to create %s directory: %w", dir, err)
		}
	}
	r.debug("repository initialized", "path", r.Path)
	return nil
}

// --- Certificates ---

func (r *Repository) CertificateExists(ctx context.Context, id string) (bool, error) {
	return r.exists(CertificatesDir, id)
}

func (r *Repository) FetchCertificate(ctx context.Context, id string) (*core.Document, error) {
	return r.fetch(CertificatesDir, id)
}

func (r *Repository) StoreCertificate(ctx context.Context, id string, cert core.Document) error {
	return r.create(CertificatesDir, id, cert)
}

// --- Drafts ---

func (r *Repository) DraftExists(ctx context.Context, id string) (bool, error) {
	return r.exists(DraftsDir, id)
}

func (r *Repository) FetchDraft(ctx context.Context, id string) (*core.Document, error) {
	return r.fetch(DraftsDir, id)
}

// StoreDraft creates or replaces a draft file.
func (r *Repository) StoreDraft(ctx context.Context, id string, draft core.Document) error {
	if err := r.writable(); err != nil {
		return err
	}
	path, err := r.docPath(DraftsDir, id)
	if err != nil {
		return err
	}
	data, err := r.codec.Encode(draft)
	if err != nil {
		return err
	}
	if err := writeFileAtomic(path, data, draftPerm); err != nil {
		return unavailable(err)
	}
	r.debug("stored draft", "id", id)
	return nil
}

func (r *Repository) DeleteDraft(ctx context.Context, id string) error {
	if err := r.writable(); err != nil {
		return err
	}
	path, err := r.docPath(DraftsDir, id)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return unavailable(err)
	}
	return nil
}

// --- Documents ---

func (r *Repository) DocumentExists(ctx context.Context, id string) (bool, error) {
	return r.exists(DocumentsDir, id)
}

func (r *Repository) FetchDocument(ctx context.Context, id string) (*core.Document, error) {
	return r.fetch(DocumentsDir, id)
}

func (r *Repository) StoreDocument(ctx context.Context, id string, doc core.Document) error {
	return r.create(DocumentsDir, id, doc)
}

// --- Types ---

func (r *Repository) TypeExists(ctx context.Context, id string) (bool, error) {
	return r.exists(TypesDir, id)
}

func (r *Repository) FetchType(ctx context.Context, id string) (*core.Document, error) {
	return r.fetch(TypesDir, id)
}

func (r *Repository) StoreType(ctx context.Context, id string, typ core.Document) error {
	return r.create(TypesDir, id, typ)
}

// --- Queues ---

func (r *Repository) QueueExists(ctx context.Context, queue string) (bool, error) {
	dir, err := r.queueDir(queue)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, unavailable(err)
	}
	return info.IsDir(), nil
}

func (r *Repository) CreateQueue(ctx context.Context, queue string) error {
	if err := r.writable(); err != nil {
		return err
	}
	dir, err := r.queueDir(queue)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return unavailable(err)
	}
	return nil
}

func (r *Repository) DeleteQueue(ctx context.Context, queue string) error {
	if err := r.writable(); err != nil {
		return err
	}
	dir, err := r.queueDir(queue)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(dir); err != nil {
		return unavailable(err)
	}
	return nil
}

// QueueMessage writes message as a new entry named name, failing if the entry exists.
func (r *Repository) QueueMessage(ctx context.Context, queue, name string, message core.Document) error {
	if err := r.CreateQueue(ctx, queue); err != nil {
		return err
	}
	path, err := r.messagePath(queue, name)
	if err != nil {
		return err
	}
	data, err := r.codec.Encode(message)
	if err != nil {
		return err
	}
	if err := createFileExclusive(path, data, messagePerm); err != nil {
		if errors.Is(err, os.ErrExist) {
			return fmt.Errorf("%w: message %s/%s", core.ErrAlreadyExists, queue, name)
		}
		return unavailable(err)
	}
	return nil
}

// ListMessages returns the pending entry names of queue in directory order.
func (r *Repository) ListMessages(ctx context.Context, queue string) ([]string, error) {
	dir, err := r.queueDir(queue)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, unavailable(err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, TempFilePrefix) || filepath.Ext(name) != Extension {
			continue
		}
		names = append(names, strings.TrimSuffix(name, Extension))
	}
	return names, nil
}

func (r *Repository) FetchMessage(ctx context.Context, queue, name string) (*core.Document, error) {
	path, err := r.messagePath(queue, name)
	if err != nil {
		return nil, err
	}
	return r.read(path)
}

// DeleteMessage removes a queue entry. Only one caller can succeed for a given entry.
func (r *Repository) DeleteMessage(ctx context.Context, queue, name string) error {
	if err := r.writable(); err != nil {
		return err
	}
	path, err := r.messagePath(queue, name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: message %s/%s", core.ErrNotFound, queue, name)
		}
		return unavailable(err)
	}
	return nil
}

// --- Listing ---

// Listing describes one stored entry.
type Listing struct {
	Citation core.Citation
	Type     string
}

// List returns the entries of kind whose identifier matches pattern
// (doublestar syntax, e.g. "BXC*v1.*"), sorted by identifier.
// An empty pattern matches everything.
func (r *Repository) List(ctx context.Context, kind, pattern string) ([]Listing, error) {
	dir, err := kindDir(kind)
	if err != nil {
		return nil, err
	}
	if pattern == "" {
		pattern = "*"
	}
	if !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("%w: pattern %q", core.ErrInvalidParameter, pattern)
	}

	if err := r.index.Load(); err != nil {
		r.debug("index unavailable, rebuilding", "error", err)
	}

	entries, err := os.ReadDir(filepath.Join(r.Path, dir))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, unavailable(err)
	}

	var listings []Listing
	seen := make(map[string]bool)
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, TempFilePrefix) || filepath.Ext(name) != Extension {
			continue
		}
		id := strings.TrimSuffix(name, Extension)
		relPath := filepath.ToSlash(filepath.Join(dir, name))
		seen[relPath] = true

		match, err := doublestar.Match(pattern, id)
		if err != nil {
			return nil, fmt.Errorf("%w: pattern %q: %v", core.ErrInvalidParameter, pattern, err)
		}
		if !match {
			continue
		}

		info, err := e.Info()
		if err != nil {
			continue
		}
		entry, hit := r.index.Get(relPath, info.ModTime())
		if !hit {
			doc, err := r.read(filepath.Join(r.Path, relPath))
			if err != nil || doc == nil {
				r.debug("skipping unreadable entry", "path", relPath, "error", err)
				continue
			}
			entry = &indexEntry{
				ID:           id,
				Kind:         kind,
				Type:         doc.Type,
				LastModified: info.ModTime(),
			}
			r.index.Set(relPath, entry)
		}

		c, err := core.CitationFromID(id)
		if err != nil {
			continue
		}
		listings = append(listings, Listing{Citation: c, Type: entry.Type})
	}

	if !r.readOnly {
		r.index.Prune(r.keepOutside(dir, seen))
		if err := r.index.Save(); err != nil {
			r.debug("failed to save index", "error", err)
		}
	}
	r.recordListing()

	sort.Slice(listings, func(i, j int) bool {
		return listings[i].Citation.ID() < listings[j].Citation.ID()
	})
	return listings, nil
}

// keepOutside returns the set of index paths to keep: everything listed now
// plus everything that belongs to other directories.
func (r *Repository) keepOutside(dir string, seen map[string]bool) map[string]bool {
	keep := make(map[string]bool, len(seen))
	for k := range seen {
		keep[k] = true
	}
	r.index.state.mu.RLock()
	defer r.index.state.mu.RUnlock()
	for k := range r.index.state.Entries {
		if !strings.HasPrefix(k, dir+"/") {
			keep[k] = true
		}
	}
	return keep
}

// --- helpers ---

func (r *Repository) writable() error {
	if r.readOnly {
		return core.ErrReadOnly
	}
	return nil
}

func (r *Repository) debug(msg string, args ...any) {
	if r.config.Logger != nil {
		r.config.Logger.Debug(msg, args...)
	}
}

func (r *Repository) recordListing() {
	now := time.Now()
	r.mu.Lock()
	r.lastListing = &now
	r.mu.Unlock()
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", core.ErrRepositoryUnavailable, err)
}

func kindDir(kind string) (string, error) {
	switch kind {
	case core.KindCertificate:
		return CertificatesDir, nil
	case core.KindDraft:
		return DraftsDir, nil
	case core.KindDocument:
		return DocumentsDir, nil
	case core.KindType:
		return TypesDir, nil
	}
	return "", fmt.Errorf("%w: unknown kind %q", core.ErrInvalidParameter, kind)
}

// docPath validates id, which keeps paths inside the root.
func (r *Repository) docPath(dir, id string) (string, error) {
	if _, _, err := core.ParseID(id); err != nil {
		return "", err
	}
	return filepath.Join(r.Path, dir, id+Extension), nil
}

func (r *Repository) queueDir(queue string) (string, error) {
	if _, err := core.ParseTag(queue); err != nil {
		return "", err
	}
	return filepath.Join(r.Path, QueuesDir, queue), nil
}

func (r *Repository) messagePath(queue, name string) (string, error) {
	dir, err := r.queueDir(queue)
	if err != nil {
		return "", err
	}
	if _, err := core.ParseTag(name); err != nil {
		return "", err
	}
	return filepath.Join(dir, name+Extension), nil
}

func (r *Repository) exists(dir, id string) (bool, error) {
	path, err := r.docPath(dir, id)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, unavailable(err)
	}
	return true, nil
}

func (r *Repository) fetch(dir, id string) (*core.Document, error) {
	path, err := r.docPath(dir, id)
	if err != nil {
		return nil, err
	}
	return r.read(path)
}

func (r *Repository) read(path string) (*core.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, unavailable(err)
	}
	doc, err := r.codec.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return doc, nil
}

// create writes a committed entry that can never be overwritten.
func (r *Repository) create(dir, id string, doc core.Document) error {
	if err := r.writable(); err != nil {
		return err
	}
	path, err := r.docPath(dir, id)
	if err != nil {
		return err
	}
	data, err := r.codec.Encode(doc)
	if err != nil {
		return err
	}
	if err := createFileExclusive(path, data, committedPerm); err != nil {
		if errors.Is(err, os.ErrExist) {
			return fmt.Errorf("%w: %s %s", core.ErrAlreadyExists, strings.TrimSuffix(dir, "s"), id)
		}
		return unavailable(err)
	}
	r.debug("stored committed entry", "dir", dir, "id", id)
	return nil
}

var _ core.Repository = (*Repository)(nil)
