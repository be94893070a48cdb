package fsutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSecureCreateDirAllSetsMode(t *testing.T) {
	base := t.TempDir()
	target := filepath.Join(base, "a", "b", "c")

	require.NoError(t, SecureCreateDirAll(base, target))

	info, err := os.Stat(target)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.Equal(t, os.FileMode(0700), info.Mode().Perm())

	parent, err := os.Stat(filepath.Join(base, "a"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0700), parent.Mode().Perm())
}

func TestSecureCreateDirAllRejectsEscape(t *testing.T) {
	base := t.TempDir()
	outside := filepath.Join(base, "..", "escaped")

	err := SecureCreateDirAll(base, outside)
	assert.ErrorIs(t, err, ErrScopeViolation)
}

func TestSecureWriteSetsMode(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "secret.pgp")

	require.NoError(t, SecureWrite(path, []byte("ciphertext")))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "ciphertext", string(data))
}

func TestSecureWriteTruncates(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f")
	require.NoError(t, SecureWrite(path, []byte("aaaaaaaaaa")))
	require.NoError(t, SecureWrite(path, []byte("bb")))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "bb", string(data))
}

func TestIsSecureDirAndFile(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "sub")
	require.NoError(t, os.Mkdir(sub, 0700))
	assert.True(t, IsSecureDir(sub))

	loose := filepath.Join(dir, "loose")
	require.NoError(t, os.Mkdir(loose, 0755))
	assert.False(t, IsSecureDir(loose))

	file := filepath.Join(dir, "f")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0600))
	assert.True(t, IsSecureFile(file))

	looseFile := filepath.Join(dir, "g")
	require.NoError(t, os.WriteFile(looseFile, []byte("x"), 0644))
	assert.False(t, IsSecureFile(looseFile))
}

func TestExists(t *testing.T) {
	dir := t.TempDir()
	assert.False(t, Exists(filepath.Join(dir, "nope")))
	path := filepath.Join(dir, "yes")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0600))
	assert.True(t, Exists(path))
}
