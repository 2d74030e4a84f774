// Package core holds the document lifecycle engine: versions, citations,
// seal chains, the document cache, the queue claim protocol and the Service
// that composes them on top of the Repository and Notary ports.
package core

import (
	"encoding/base32"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Metadata represents the flexible key-value pairs associated with a document.
type Metadata map[string]any

// Well-known document types.
const (
	TypeCertificate = "certificate"
	TypeCredentials = "credentials"
	TypeEvent       = "event"
	TypeMessage     = "message"
)

// Well-known queues used by PublishEvent and SendMessage.
const (
	EventQueue Tag = "3RMGDVN7J3FVL9B5W2KLCX2G3S"
	SendQueue  Tag = "JXT095QY01HBLHPAW04ZR5WSH4"
)

// TargetKey is the attribute stamped on messages sent to a citation.
const TargetKey = "target"

// tagEncoding omits E, I, O and U so that a lowercase 'v' can never be part of a tag.
var tagEncoding = base32.NewEncoding("0123456789ABCDFGHJKLMNPQRSTVWXYZ").WithPadding(base32.NoPadding)

// Tag is the immutable, globally unique identifier of a document lineage, queue or message.
type Tag string

// NewTag returns a fresh random tag.
func NewTag() Tag {
	id := uuid.New()
	return Tag(tagEncoding.EncodeToString(id[:]))
}

// ParseTag accepts a tag with or without its leading '#'.
func ParseTag(s string) (Tag, error) {
	s = strings.TrimPrefix(s, "#")
	if s == "" {
		return "", fmt.Errorf("%w: empty tag", ErrMalformedIdentifier)
	}
	if _, err := tagEncoding.DecodeString(s); err != nil {
		return "", fmt.Errorf("%w: tag %q: %v", ErrMalformedIdentifier, s, err)
	}
	return Tag(s), nil
}

// String returns the textual form of the tag, e.g. "#BXC15F9...".
func (t Tag) String() string {
	return "#" + string(t)
}

// Seal binds a signature to the citation of the certificate that produced it.
type Seal struct {
	Certificate Citation `yaml:"certificate"`
	Signature   string   `yaml:"signature"`
}

// Document is the central entity of the domain.
// The same shape is used for drafts, committed documents, certificates, types and messages.
// A committed document is never mutated; methods that change it return copies.
type Document struct {
	Type       string    `yaml:"type,omitempty"`
	Tag        Tag       `yaml:"tag"`
	Version    Version   `yaml:"version"`
	Previous   *Citation `yaml:"previous,omitempty"`
	Attributes Metadata  `yaml:"attributes,omitempty"`
	Content    string    `yaml:"content,omitempty"`
	Seals      []Seal    `yaml:"seals,omitempty"`
}

// ID returns the repository identifier of the document.
func (d Document) ID() string {
	return ComposeID(d.Tag, d.Version)
}

// Citation returns the (tag, version) citation of the document without a digest.
func (d Document) Citation() Citation {
	return Citation{Tag: d.Tag, Version: d.Version.Clone()}
}

// Clone returns a copy that shares no slices or maps with d.
func (d Document) Clone() Document {
	c := d
	c.Version = d.Version.Clone()
	if d.Previous != nil {
		p := d.Previous.Clone()
		c.Previous = &p
	}
	if d.Attributes != nil {
		c.Attributes = make(Metadata, len(d.Attributes))
		for k, v := range d.Attributes {
			c.Attributes[k] = v
		}
	}
	if d.Seals != nil {
		c.Seals = make([]Seal, len(d.Seals))
		for i, s := range d.Seals {
			c.Seals[i] = Seal{Certificate: s.Certificate.Clone(), Signature: s.Signature}
		}
	}
	return c
}

// LastSeal returns the most recently added seal, if any.
func (d Document) LastSeal() (Seal, bool) {
	if len(d.Seals) == 0 {
		return Seal{}, false
	}
	return d.Seals[len(d.Seals)-1], true
}

// WithoutLastSeal returns a copy of d with its most recent seal removed.
// The state returned is exactly the state that seal was computed over.
func (d Document) WithoutLastSeal() Document {
	c := d.Clone()
	if n := len(c.Seals); n > 0 {
		c.Seals = c.Seals[:n-1]
		if len(c.Seals) == 0 {
			c.Seals = nil
		}
	}
	return c
}

// WithSeal returns a copy of d with seal appended.
func (d Document) WithSeal(seal Seal) Document {
	c := d.Clone()
	c.Seals = append(c.Seals, seal)
	return c
}

// EventType represents the type of change observed on a queue.
type EventType string

const (
	EventCreate EventType = "CREATE"
	EventDelete EventType = "DELETE"
)

// Event represents a change in a watched queue.
type Event struct {
	Type      EventType
	Queue     Tag
	ID        string
	Timestamp int64 // Unix timestamp
}

// String implements lifecycle.Event.
func (e Event) String() string {
	return fmt.Sprintf("%s %s/%s", e.Type, e.Queue, e.ID)
}
