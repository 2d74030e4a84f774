package core

import (
	"fmt"
	"strings"
)

// Citation names exactly one immutable document (or draft slot) by tag and version.
// Digest, when present, is the hex SHA-256 of the cited document's encoding.
type Citation struct {
	Tag     Tag     `yaml:"tag"`
	Version Version `yaml:"version"`
	Digest  string  `yaml:"digest,omitempty"`
}

// ComposeID builds the repository key for a tag and version.
func ComposeID(tag Tag, version Version) string {
	return string(tag) + version.String()
}

// ParseID is the inverse of ComposeID.
func ParseID(id string) (Tag, Version, error) {
	i := strings.LastIndexByte(id, 'v')
	if i <= 0 {
		return "", nil, fmt.Errorf("%w: %q", ErrMalformedIdentifier, id)
	}
	tag, err := ParseTag(id[:i])
	if err != nil {
		return "", nil, err
	}
	version, err := ParseVersion(id[i:])
	if err != nil {
		return "", nil, err
	}
	return tag, version, nil
}

// CitationFromID parses a repository key into a citation without digest.
func CitationFromID(id string) (Citation, error) {
	tag, version, err := ParseID(id)
	if err != nil {
		return Citation{}, err
	}
	return Citation{Tag: tag, Version: version}, nil
}

// ParseCitation accepts "#TAG/v1.2", "TAG/v1.2" or a bare identifier "TAGv1.2".
func ParseCitation(s string) (Citation, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	if tag, version, ok := strings.Cut(s, "/"); ok {
		t, err := ParseTag(tag)
		if err != nil {
			return Citation{}, err
		}
		v, err := ParseVersion(version)
		if err != nil {
			return Citation{}, err
		}
		return Citation{Tag: t, Version: v}, nil
	}
	return CitationFromID(s)
}

// ID returns the repository key of the cited document.
func (c Citation) ID() string {
	return ComposeID(c.Tag, c.Version)
}

// String returns the textual form "#TAG/v1.2".
func (c Citation) String() string {
	return c.Tag.String() + "/" + c.Version.String()
}

// Matches reports whether both citations name the same tag and version, ignoring digests.
func (c Citation) Matches(o Citation) bool {
	return c.Tag == o.Tag && c.Version.Equal(o.Version)
}

// Clone returns a copy of c.
func (c Citation) Clone() Citation {
	return Citation{Tag: c.Tag, Version: c.Version.Clone(), Digest: c.Digest}
}
