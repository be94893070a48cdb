package checksum

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOfBytesIsDeterministic(t *testing.T) {
	a := OfBytes([]byte("hello"))
	b := OfBytes([]byte("hello"))
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
}

func TestOfStringMatchesOfBytes(t *testing.T) {
	assert.Equal(t, OfBytes([]byte("passd")), OfString("passd"))
}

func TestOfFileMatchesOfBytes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "secret.pgp")
	content := []byte("ciphertext-bytes")
	require.NoError(t, os.WriteFile(path, content, 0600))

	got, err := OfFile(path)
	require.NoError(t, err)
	assert.Equal(t, OfBytes(content), got)
}

func TestOfFileMissing(t *testing.T) {
	_, err := OfFile(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestDifferentContentDifferentDigest(t *testing.T) {
	assert.NotEqual(t, OfString("a"), OfString("b"))
}
