// Package codec provides the document notation used on disk and on the wire.
//
// Documents are written as YAML with a fixed field order and sorted attribute
// keys, so encoding the same document twice yields the same bytes. Signatures
// and digests are computed over this encoding.
package codec

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/aretw0/nebula/pkg/core"
	"gopkg.in/yaml.v3"
)

// MediaType is the content type of encoded documents.
const MediaType = "application/bali"

// CredentialsHeader carries the caller's notarized credentials document,
// encoded with EncodeHeader.
const CredentialsHeader = "Nebula-Credentials"

// YAML implements core.Codec.
type YAML struct{}

// New returns the default codec.
func New() *YAML {
	return &YAML{}
}

// Encode serializes doc deterministically. Strings holding control characters
// are double quoted so that they read back byte for byte. A document whose
// encoding would not read back identically fails with core.ErrInvalidParameter.
func (c *YAML) Encode(doc core.Document) ([]byte, error) {
	data, err := marshal(doc)
	if err != nil {
		return nil, err
	}

	var check core.Document
	if err := yaml.Unmarshal(data, &check); err != nil {
		return nil, fmt.Errorf("%w: document does not survive encoding: %v", core.ErrInvalidParameter, err)
	}
	again, err := marshal(check)
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(data, again) || check.Content != doc.Content {
		return nil, fmt.Errorf("%w: document does not survive encoding", core.ErrInvalidParameter)
	}
	return data, nil
}

func marshal(doc core.Document) ([]byte, error) {
	out := document{
		Type:       text(doc.Type),
		Tag:        doc.Tag,
		Version:    doc.Version,
		Previous:   doc.Previous,
		Attributes: textMap(doc.Attributes),
		Content:    text(doc.Content),
		Seals:      doc.Seals,
	}

	var buf bytes.Buffer
	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(2)
	if err := encoder.Encode(out); err != nil {
		return nil, fmt.Errorf("failed to encode document: %w", err)
	}
	if err := encoder.Close(); err != nil {
		return nil, fmt.Errorf("failed to encode document: %w", err)
	}
	return buf.Bytes(), nil
}

// document mirrors core.Document field for field, with strings that pick their own style.
type document struct {
	Type       text           `yaml:"type,omitempty"`
	Tag        core.Tag       `yaml:"tag"`
	Version    core.Version   `yaml:"version"`
	Previous   *core.Citation `yaml:"previous,omitempty"`
	Attributes map[string]any `yaml:"attributes,omitempty"`
	Content    text           `yaml:"content,omitempty"`
	Seals      []core.Seal    `yaml:"seals,omitempty"`
}

// text is a string that is double quoted when it holds control characters,
// which block styles would fold or reject.
type text string

func (t text) MarshalYAML() (any, error) {
	s := string(t)
	if !utf8.ValidString(s) {
		// An untagged scalar with invalid UTF-8 is written as !!binary.
		return &yaml.Node{Kind: yaml.ScalarNode, Value: s}, nil
	}
	node := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: s}
	if strings.IndexFunc(s, isControl) >= 0 {
		node.Style = yaml.DoubleQuotedStyle
	}
	return node, nil
}

func isControl(r rune) bool {
	return unicode.IsControl(r) || r == '\u2028' || r == '\u2029' || r == '\ufeff'
}

func textMap(m map[string]any) map[string]any {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = textValue(v)
	}
	return out
}

func textValue(v any) any {
	switch v := v.(type) {
	case string:
		return text(v)
	case core.Metadata:
		return textMap(v)
	case map[string]any:
		return textMap(v)
	case map[string]string:
		out := make(map[string]any, len(v))
		for k, s := range v {
			out[k] = text(s)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = textValue(item)
		}
		return out
	case []string:
		out := make([]any, len(v))
		for i, s := range v {
			out[i] = text(s)
		}
		return out
	}
	return v
}

// Decode parses data and checks the document is structurally well formed.
func (c *YAML) Decode(data []byte) (*core.Document, error) {
	var doc core.Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: invalid document: %v", core.ErrValidation, err)
	}
	if doc.Tag == "" || !doc.Version.Valid() {
		return nil, fmt.Errorf("%w: document has no tag or version", core.ErrValidation)
	}
	for i, seal := range doc.Seals {
		if seal.Signature == "" || seal.Certificate.Tag == "" || !seal.Certificate.Version.Valid() {
			return nil, fmt.Errorf("%w: seal %d is incomplete", core.ErrValidation, i)
		}
	}
	return &doc, nil
}

// MediaType implements core.Codec.
func (c *YAML) MediaType() string {
	return MediaType
}

// EncodeHeader encodes doc for use as a single-line header value.
func EncodeHeader(c core.Codec, doc core.Document) (string, error) {
	data, err := c.Encode(doc)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(data), nil
}

// DecodeHeader is the inverse of EncodeHeader.
func DecodeHeader(c core.Codec, value string) (*core.Document, error) {
	data, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("%w: header is not base64url: %v", core.ErrInvalidParameter, err)
	}
	return c.Decode(data)
}

var _ core.Codec = (*YAML)(nil)
