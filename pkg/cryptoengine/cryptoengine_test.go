package cryptoengine

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ProtonMail/go-crypto/openpgp/armor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/passd/pkg/keymanager"
	"github.com/cuemby/passd/pkg/passderr"
)

const testPassword = "correct horse battery staple"

func newLockedEntity(t *testing.T) *openpgp.Entity {
	t.Helper()
	entity, err := openpgp.NewEntity("passd-test", "", "test@example.invalid", nil)
	require.NoError(t, err)
	for _, sub := range entity.Subkeys {
		require.NoError(t, sub.PrivateKey.Encrypt([]byte(testPassword)))
	}
	return entity
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	entity := newLockedEntity(t)
	dir := t.TempDir()
	writeEntityKeyring(t, entity, filepath.Join(dir, "recipient.asc"))

	plaintext := []byte("correct horse battery staple")
	ciphertext, err := Encrypt(plaintext, []*openpgp.Entity{entity})
	require.NoError(t, err)
	assert.NotEmpty(t, ciphertext)

	km := keymanager.New(dir, "", "")
	got, err := Decrypt(ciphertext, testPassword, km)
	require.NoError(t, err)
	assert.Equal(t, plaintext, got)
}

func TestDecryptWrongPassword(t *testing.T) {
	entity := newLockedEntity(t)
	dir := t.TempDir()
	writeEntityKeyring(t, entity, filepath.Join(dir, "recipient.asc"))

	ciphertext, err := Encrypt([]byte("secret"), []*openpgp.Entity{entity})
	require.NoError(t, err)

	km := keymanager.New(dir, "", "")
	_, err = Decrypt(ciphertext, "wrong password", km)
	assert.ErrorIs(t, err, passderr.Sentinel(passderr.KindBadPassword))
}

func TestDecryptUnknownRecipient(t *testing.T) {
	encryptingEntity := newLockedEntity(t)
	ciphertext, err := Encrypt([]byte("secret"), []*openpgp.Entity{encryptingEntity})
	require.NoError(t, err)

	km := keymanager.New(t.TempDir(), "", "")
	_, err = Decrypt(ciphertext, testPassword, km)
	assert.ErrorIs(t, err, passderr.Sentinel(passderr.KindKeyNotFound))
}

func TestDecryptNoRecipients(t *testing.T) {
	km := keymanager.New(t.TempDir(), "", "")
	_, err := Decrypt([]byte("-----BEGIN PGP MESSAGE-----\n\n-----END PGP MESSAGE-----\n"), "x", km)
	assert.Error(t, err)
}

func TestEncryptNoUsableRecipients(t *testing.T) {
	// An entity with no subkeys at all offers no storage encryption key.
	entity, err := openpgp.NewEntity("bare", "", "bare@example.invalid", nil)
	require.NoError(t, err)
	entity.Subkeys = nil

	_, err = Encrypt([]byte("secret"), []*openpgp.Entity{entity})
	assert.ErrorIs(t, err, passderr.Sentinel(passderr.KindNoEncryptionKey))
}

func writeEntityKeyring(t *testing.T, entity *openpgp.Entity, path string) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	w, err := armor.Encode(f, openpgp.PrivateKeyType, nil)
	require.NoError(t, err)
	require.NoError(t, entity.SerializePrivate(w, nil))
	require.NoError(t, w.Close())
}
