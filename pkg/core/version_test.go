package core_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/nebula/pkg/core"
)

func TestParseVersion(t *testing.T) {
	v, err := core.ParseVersion("v1.2.10")
	require.NoError(t, err)
	assert.Equal(t, core.Version{1, 2, 10}, v)
	assert.Equal(t, "v1.2.10", v.String())

	for _, bad := range []string{"", "v", "1.2", "v0", "v1.0", "v01", "v1..2", "v+1", "v1.-2", "vx"} {
		_, err := core.ParseVersion(bad)
		assert.True(t, errors.Is(err, core.ErrMalformedIdentifier), "expected %q to be rejected", bad)
	}
}

func TestIsValidNext(t *testing.T) {
	tests := []struct {
		current, next string
		want          bool
	}{
		{"v1", "v2", true},
		{"v1.2", "v1.3", true},
		{"v1.2", "v2", true},
		{"v1.2.3", "v1.3", true},
		{"v1", "v1.1", false},
		{"v1.2", "v1.4", false},
		{"v1.2", "v1.2", false},
		{"v1.2", "v1.2.1", false},
		{"v2", "v1", false},
		{"v1.2", "v2.1", false},
	}
	for _, tt := range tests {
		t.Run(tt.current+"->"+tt.next, func(t *testing.T) {
			current, err := core.ParseVersion(tt.current)
			require.NoError(t, err)
			next, err := core.ParseVersion(tt.next)
			require.NoError(t, err)
			assert.Equal(t, tt.want, core.IsValidNext(current, next))
		})
	}
}

func TestVersionText(t *testing.T) {
	var v core.Version
	require.NoError(t, v.UnmarshalText([]byte("v3.1")))
	assert.Equal(t, core.Version{3, 1}, v)

	_, err := core.Version{0}.MarshalText()
	assert.Error(t, err)
}
