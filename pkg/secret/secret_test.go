package secret

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ProtonMail/go-crypto/openpgp/armor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/passd/pkg/checksum"
	"github.com/cuemby/passd/pkg/config"
	"github.com/cuemby/passd/pkg/keymanager"
	"github.com/cuemby/passd/pkg/metadata"
	"github.com/cuemby/passd/pkg/passderr"
)

const testPassword = "hunter2-unlock"

type fixture struct {
	cfg   *config.Config
	km    *keymanager.Manager
	cert  *openpgp.Entity
	cert2 *openpgp.Entity
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{
		SecretsDir:  filepath.Join(dir, "secrets"),
		MetadataDir: filepath.Join(dir, "metadata"),
		KeysDir:     filepath.Join(dir, "keys"),
	}
	require.NoError(t, os.MkdirAll(cfg.SecretsDir, 0700))
	require.NoError(t, os.MkdirAll(cfg.MetadataDir, 0700))
	require.NoError(t, os.MkdirAll(cfg.KeysDir, 0700))

	cert := newEntity(t, testPassword)
	writeKey(t, cert, filepath.Join(cfg.KeysDir, "primary.asc"))

	cert2 := newEntity(t, "second-password")
	writeKey(t, cert2, filepath.Join(cfg.KeysDir, "secondary.asc"))

	return &fixture{
		cfg:   cfg,
		km:    keymanager.New(cfg.KeysDir, "", ""),
		cert:  cert,
		cert2: cert2,
	}
}

func newEntity(t *testing.T, password string) *openpgp.Entity {
	t.Helper()
	entity, err := openpgp.NewEntity("passd-test", "", "test@example.invalid", nil)
	require.NoError(t, err)
	for _, sub := range entity.Subkeys {
		require.NoError(t, sub.PrivateKey.Encrypt([]byte(password)))
	}
	return entity
}

func writeKey(t *testing.T, entity *openpgp.Entity, path string) {
	t.Helper()
	var buf bytes.Buffer
	w, err := armor.Encode(&buf, openpgp.PrivateKeyType, nil)
	require.NoError(t, err)
	require.NoError(t, entity.SerializePrivate(w, nil))
	require.NoError(t, w.Close())
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0600))
}

func TestCreateThenRead(t *testing.T) {
	f := newFixture(t)
	fp := keymanager.Fingerprint(f.cert)

	s := New(f.cfg, f.km, "work/github")
	err := s.Create([]byte("hunter2"), metadata.BaseMetadata{Type: "login", Tags: []string{"dev"}}, []string{fp})
	require.NoError(t, err)

	data, err := os.ReadFile(s.CiphertextPath())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "-----BEGIN PGP MESSAGE-----"))

	m, err := s.Metadata()
	require.NoError(t, err)
	assert.Equal(t, fp, m.Fingerprint)
	assert.Equal(t, s.RelativePath, m.Path)

	plaintext, err := s.Plaintext(testPassword)
	require.NoError(t, err)
	assert.Equal(t, "hunter2", string(plaintext))
}

func TestCreateRejectsExisting(t *testing.T) {
	f := newFixture(t)
	fp := keymanager.Fingerprint(f.cert)
	s := New(f.cfg, f.km, "dup")
	require.NoError(t, s.Create([]byte("a"), metadata.BaseMetadata{}, []string{fp}))

	err := s.Create([]byte("b"), metadata.BaseMetadata{}, []string{fp})
	assert.ErrorIs(t, err, passderr.Sentinel(passderr.KindAlreadyExists))
}

func TestUpdateMetadataOnlyDoesNotIncrementModifications(t *testing.T) {
	f := newFixture(t)
	fp := keymanager.Fingerprint(f.cert)
	s := New(f.cfg, f.km, "work/github")
	require.NoError(t, s.Create([]byte("hunter2"), metadata.BaseMetadata{Tags: []string{"dev"}}, []string{fp}))

	overlay := metadata.BaseMetadata{Tags: []string{"prod"}}
	require.NoError(t, s.Update(UpdateOptions{MetadataOverlay: &overlay, Password: testPassword}))

	m, err := s.Metadata()
	require.NoError(t, err)
	assert.Equal(t, uint64(0), m.Modifications)
	assert.True(t, m.UpdatedAt.After(m.CreatedAt) || m.UpdatedAt.Equal(m.CreatedAt))
	assert.Equal(t, []string{"dev", "prod"}, m.Template.Tags)
}

func TestUpdateContentIncrementsModifications(t *testing.T) {
	f := newFixture(t)
	fp := keymanager.Fingerprint(f.cert)
	s := New(f.cfg, f.km, "work/github")
	require.NoError(t, s.Create([]byte("hunter2"), metadata.BaseMetadata{}, []string{fp}))

	require.NoError(t, s.Update(UpdateOptions{Content: []byte("hunter3"), Password: testPassword}))

	m, err := s.Metadata()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), m.Modifications)

	plaintext, err := s.Plaintext(testPassword)
	require.NoError(t, err)
	assert.Equal(t, "hunter3", string(plaintext))
}

func TestUpdateWrongPasswordFailsAndDoesNotModify(t *testing.T) {
	f := newFixture(t)
	fp := keymanager.Fingerprint(f.cert)
	s := New(f.cfg, f.km, "work/github")
	require.NoError(t, s.Create([]byte("hunter2"), metadata.BaseMetadata{}, []string{fp}))

	before, err := os.ReadFile(s.MetadataPath())
	require.NoError(t, err)

	overlay := metadata.BaseMetadata{Description: "x"}
	err = s.Update(UpdateOptions{MetadataOverlay: &overlay, Password: "wrong password"})
	assert.ErrorIs(t, err, passderr.Sentinel(passderr.KindBadPassword))

	after, err := os.ReadFile(s.MetadataPath())
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestCloneToRekeys(t *testing.T) {
	f := newFixture(t)
	fp1 := keymanager.Fingerprint(f.cert)
	fp2 := keymanager.Fingerprint(f.cert2)

	s := New(f.cfg, f.km, "work/github")
	require.NoError(t, s.Create([]byte("hunter2"), metadata.BaseMetadata{Type: "login"}, []string{fp1}))

	dest, err := s.CloneTo("backup/github", []string{fp2}, testPassword)
	require.NoError(t, err)

	m, err := dest.Metadata()
	require.NoError(t, err)
	assert.Equal(t, fp2, m.Fingerprint)
	assert.Equal(t, uint64(0), m.Modifications)
	assert.True(t, m.CreatedAt.Equal(m.UpdatedAt))

	plaintext, err := dest.Plaintext("second-password")
	require.NoError(t, err)
	assert.Equal(t, "hunter2", string(plaintext))
}

func TestCopyToPreservesBytesAndLeavesPathStale(t *testing.T) {
	f := newFixture(t)
	fp := keymanager.Fingerprint(f.cert)
	s := New(f.cfg, f.km, "work/github")
	require.NoError(t, s.Create([]byte("hunter2"), metadata.BaseMetadata{}, []string{fp}))

	dest, err := s.CopyTo("work/github-copy")
	require.NoError(t, err)

	srcBytes, err := s.Content()
	require.NoError(t, err)
	destBytes, err := dest.Content()
	require.NoError(t, err)
	assert.Equal(t, srcBytes, destBytes)

	m, err := dest.Metadata()
	require.NoError(t, err)
	assert.Equal(t, s.RelativePath, m.Path, "copy_to leaves path pointing at the source")
}

func TestMoveToCorrectsPath(t *testing.T) {
	f := newFixture(t)
	fp := keymanager.Fingerprint(f.cert)
	s := New(f.cfg, f.km, "work/github")
	require.NoError(t, s.Create([]byte("hunter2"), metadata.BaseMetadata{}, []string{fp}))

	dest, err := s.MoveTo("work/github-moved")
	require.NoError(t, err)

	assert.False(t, fileExists(s.CiphertextPath()))
	assert.False(t, fileExists(s.MetadataPath()))

	m, err := dest.Metadata()
	require.NoError(t, err)
	assert.Equal(t, dest.RelativePath, m.Path)
}

func TestRemoveRequiresPassword(t *testing.T) {
	f := newFixture(t)
	fp := keymanager.Fingerprint(f.cert)
	s := New(f.cfg, f.km, "work/github")
	require.NoError(t, s.Create([]byte("hunter2"), metadata.BaseMetadata{}, []string{fp}))

	err := s.Remove("wrong password")
	assert.ErrorIs(t, err, passderr.Sentinel(passderr.KindBadPassword))

	require.NoError(t, s.Remove(testPassword))
	assert.False(t, fileExists(s.CiphertextPath()))
	assert.False(t, fileExists(s.MetadataPath()))
}

func TestChecksumMainMatchesCiphertextOnDisk(t *testing.T) {
	f := newFixture(t)
	fp := keymanager.Fingerprint(f.cert)
	s := New(f.cfg, f.km, "x")
	require.NoError(t, s.Create([]byte("content"), metadata.BaseMetadata{}, []string{fp}))

	m, err := s.Metadata()
	require.NoError(t, err)
	data, err := os.ReadFile(s.CiphertextPath())
	require.NoError(t, err)

	assert.Len(t, m.ChecksumMain, 64)
	assert.NotEmpty(t, data)
	assert.Equal(t, checksum.OfBytes(data), m.ChecksumMain)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
