// Package typed offers a generic view of documents whose attributes map onto a Go struct.
package typed

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aretw0/nebula/pkg/core"
)

// DocumentModel is a typed view of a core.Document: its attributes are decoded into Data.
type DocumentModel[T any] struct {
	Type     string
	Tag      core.Tag
	Version  core.Version
	Previous *core.Citation
	Content  string
	Data     T        // The typed attributes
	Saver    Saver[T] // Active Record reference interface
}

// Saver interface avoids tight coupling between models and the Service that produced them.
type Saver[T any] interface {
	Save(ctx context.Context, doc *DocumentModel[T]) error
}

// ID returns the repository identifier of the document.
func (d *DocumentModel[T]) ID() string {
	return core.ComposeID(d.Tag, d.Version)
}

// Save stores the document as a draft using the attached saver.
func (d *DocumentModel[T]) Save(ctx context.Context) error {
	if d.Saver == nil {
		return fmt.Errorf("document is detached (missing Saver)")
	}
	return d.Saver.Save(ctx, d)
}

// toCore converts the model into a document, flattening Data into attributes.
func toCore[T any](doc *DocumentModel[T]) (core.Document, error) {
	dataBytes, err := json.Marshal(doc.Data)
	if err != nil {
		return core.Document{}, fmt.Errorf("failed to marshal typed data: %w", err)
	}
	var attributes core.Metadata
	if err := json.Unmarshal(dataBytes, &attributes); err != nil {
		return core.Document{}, fmt.Errorf("%w: typed data must encode as an object: %v", core.ErrInvalidParameter, err)
	}
	return core.Document{
		Type:       doc.Type,
		Tag:        doc.Tag,
		Version:    doc.Version.Clone(),
		Previous:   doc.Previous,
		Attributes: attributes,
		Content:    doc.Content,
	}, nil
}

// fromCore converts a document into its typed view. Seals are dropped.
func fromCore[T any](doc *core.Document, saver Saver[T]) (*DocumentModel[T], error) {
	var data T
	if len(doc.Attributes) > 0 {
		dataBytes, err := json.Marshal(doc.Attributes)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal attributes: %w", err)
		}
		if err := json.Unmarshal(dataBytes, &data); err != nil {
			return nil, fmt.Errorf("%w: attributes of %s do not fit %T: %v", core.ErrValidation, doc.ID(), data, err)
		}
	}
	return &DocumentModel[T]{
		Type:     doc.Type,
		Tag:      doc.Tag,
		Version:  doc.Version.Clone(),
		Previous: doc.Previous,
		Content:  doc.Content,
		Data:     data,
		Saver:    saver,
	}, nil
}
