package genpassword

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateDefaultLength(t *testing.T) {
	pw, err := Generate(Options{})
	require.NoError(t, err)
	assert.Len(t, pw, DefaultLength)
}

func TestGenerateCustomLength(t *testing.T) {
	pw, err := Generate(Options{Length: 12})
	require.NoError(t, err)
	assert.Len(t, pw, 12)
}

func TestGenerateNumbersOnly(t *testing.T) {
	pw, err := Generate(Options{Length: 50, Filter: FilterNumbers})
	require.NoError(t, err)
	for _, r := range pw {
		assert.True(t, r >= '0' && r <= '9', "unexpected character %q", r)
	}
}

func TestGenerateCustomPool(t *testing.T) {
	pw, err := Generate(Options{Length: 20, Filter: FilterCustom, Custom: "ab"})
	require.NoError(t, err)
	for _, r := range pw {
		assert.Contains(t, "ab", string(r))
	}
}

func TestGenerateCustomPoolRequiresPool(t *testing.T) {
	_, err := Generate(Options{Filter: FilterCustom})
	assert.Error(t, err)
}

func TestGenerateSeparators(t *testing.T) {
	pw, err := Generate(Options{Length: 8, Filter: FilterNumbers, Separators: true})
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(pw, "-"))
}

func TestGenerateUnknownFilter(t *testing.T) {
	_, err := Generate(Options{Filter: "bogus"})
	assert.Error(t, err)
}
