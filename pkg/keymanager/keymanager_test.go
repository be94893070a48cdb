package keymanager

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ProtonMail/go-crypto/openpgp/armor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeTestKey generates a fresh entity, armors its full keyring
// (including private material) to path, and returns the entity for
// fingerprint/key-ID assertions.
func writeTestKey(t *testing.T, path string) *openpgp.Entity {
	t.Helper()
	entity, err := openpgp.NewEntity("passd-test", "", "test@example.invalid", nil)
	require.NoError(t, err)

	var buf bytes.Buffer
	w, err := armor.Encode(&buf, openpgp.PrivateKeyType, nil)
	require.NoError(t, err)
	require.NoError(t, entity.SerializePrivate(w, nil))
	require.NoError(t, w.Close())

	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0600))
	return entity
}

func TestGetCertByFingerprint(t *testing.T) {
	dir := t.TempDir()
	entity := writeTestKey(t, filepath.Join(dir, "test.asc"))

	mgr := New(dir, "", "")
	got, err := mgr.GetCert(Fingerprint(entity))
	require.NoError(t, err)
	assert.Equal(t, entity.PrimaryKey.KeyId, got.PrimaryKey.KeyId)
}

func TestGetCertUnknownFingerprint(t *testing.T) {
	dir := t.TempDir()
	writeTestKey(t, filepath.Join(dir, "test.asc"))

	mgr := New(dir, "", "")
	_, err := mgr.GetCert("0000000000000000000000000000000000000000")
	assert.Error(t, err)
}

func TestFindCertByKeyID(t *testing.T) {
	dir := t.TempDir()
	entity := writeTestKey(t, filepath.Join(dir, "test.asc"))

	mgr := New(dir, "", "")
	got, ok := mgr.FindCertByKeyID(entity.PrimaryKey.KeyId)
	require.True(t, ok)
	assert.Equal(t, Fingerprint(entity), Fingerprint(got))
}

func TestFindCertByKeyIDUnknown(t *testing.T) {
	dir := t.TempDir()
	writeTestKey(t, filepath.Join(dir, "test.asc"))

	mgr := New(dir, "", "")
	_, ok := mgr.FindCertByKeyID(0xDEADBEEF)
	assert.False(t, ok)
}

func TestReloadPicksUpNewKeys(t *testing.T) {
	dir := t.TempDir()
	mgr := New(dir, "", "")

	_, ok := mgr.FindCertByKeyID(0)
	assert.False(t, ok)

	entity := writeTestKey(t, filepath.Join(dir, "late.asc"))
	mgr.Reload()

	got, err := mgr.GetCert(Fingerprint(entity))
	require.NoError(t, err)
	assert.Equal(t, entity.PrimaryKey.KeyId, got.PrimaryKey.KeyId)
}
