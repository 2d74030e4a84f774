package core

import (
	"fmt"
	"strconv"
	"strings"
)

// Version is a non-empty sequence of positive integers, written "v1.2.3".
type Version []int

// ParseVersion parses the textual form "v<n>[.<n>]*".
func ParseVersion(s string) (Version, error) {
	if !strings.HasPrefix(s, "v") || len(s) < 2 {
		return nil, fmt.Errorf("%w: version %q", ErrMalformedIdentifier, s)
	}
	parts := strings.Split(s[1:], ".")
	v := make(Version, len(parts))
	for i, p := range parts {
		if p == "" || p[0] < '1' || p[0] > '9' {
			return nil, fmt.Errorf("%w: version %q", ErrMalformedIdentifier, s)
		}
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("%w: version %q", ErrMalformedIdentifier, s)
		}
		v[i] = n
	}
	return v, nil
}

// String returns the textual form of the version.
func (v Version) String() string {
	var b strings.Builder
	b.WriteByte('v')
	for i, n := range v {
		if i > 0 {
			b.WriteByte('.')
		}
		b.WriteString(strconv.Itoa(n))
	}
	return b.String()
}

// Valid reports whether v is non-empty and every component is positive.
func (v Version) Valid() bool {
	if len(v) == 0 {
		return false
	}
	for _, n := range v {
		if n < 1 {
			return false
		}
	}
	return true
}

// Equal reports whether both versions have the same components.
func (v Version) Equal(o Version) bool {
	if len(v) != len(o) {
		return false
	}
	for i := range v {
		if v[i] != o[i] {
			return false
		}
	}
	return true
}

// Clone returns a copy of v.
func (v Version) Clone() Version {
	if v == nil {
		return nil
	}
	c := make(Version, len(v))
	copy(c, v)
	return c
}

// Next returns v with its last component incremented.
func (v Version) Next() Version {
	c := v.Clone()
	if len(c) == 0 {
		return Version{1}
	}
	c[len(c)-1]++
	return c
}

// MarshalText implements encoding.TextMarshaler.
func (v Version) MarshalText() ([]byte, error) {
	if !v.Valid() {
		return nil, fmt.Errorf("%w: version %v", ErrMalformedIdentifier, []int(v))
	}
	return []byte(v.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (v *Version) UnmarshalText(text []byte) error {
	parsed, err := ParseVersion(string(text))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// IsValidNext reports whether next is a legal successor of current.
//
// The only legal shape is a single increment of one component with nothing
// after it: v1.2 -> v1.3 and v1.2 -> v2 are accepted, while v1.2 -> v1.4,
// v1.2 -> v1.2 and v1.2 -> v1.2.1 are rejected.
func IsValidNext(current, next Version) bool {
	for i := 0; i < len(current) && i < len(next); i++ {
		if current[i] != next[i] {
			return next[i] == current[i]+1 && len(next) == i+1
		}
	}
	// One is a prefix of the other (or they are equal).
	return false
}
