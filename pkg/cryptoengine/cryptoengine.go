// Package cryptoengine drives the OpenPGP pipelines over a secret's
// plaintext: encrypting to a set of recipient certificates' storage
// encryption subkeys, and decrypting ciphertext by resolving its PKESK
// recipients through pkg/keymanager and unlocking the first certificate
// whose storage encryption subkey accepts the given password.
//
// Grounded on the armor/Encrypt/ReadMessage usage in
// _examples/other_examples's lorduskordus-aerion PGP encryptor and the
// vendored openpgp write.go from moby-moby.
package cryptoengine

import (
	"bytes"
	"fmt"
	"io"
	"time"
	"unicode/utf8"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ProtonMail/go-crypto/openpgp/armor"
	"github.com/ProtonMail/go-crypto/openpgp/packet"

	"github.com/cuemby/passd/pkg/keymanager"
	"github.com/cuemby/passd/pkg/passderr"
)

// storageEncryptionCapable filters certs down to those offering at least
// one non-expired, non-revoked subkey flagged for storage encryption.
func storageEncryptionCapable(certs []*openpgp.Entity) []*openpgp.Entity {
	now := time.Now()
	var usable []*openpgp.Entity
	for _, cert := range certs {
		for _, sub := range cert.Subkeys {
			if sub.PublicKey == nil || sub.Sig == nil {
				continue
			}
			if !sub.Sig.FlagsValid || !sub.Sig.FlagEncryptStorage {
				continue
			}
			if len(sub.Revocations) > 0 {
				continue
			}
			if sub.Sig.KeyExpired(now) {
				continue
			}
			usable = append(usable, cert)
			break
		}
	}
	return usable
}

// Encrypt produces an armored OpenPGP message encrypting plaintext to
// recipients' storage encryption subkeys.
func Encrypt(plaintext []byte, recipients []*openpgp.Entity) ([]byte, error) {
	usable := storageEncryptionCapable(recipients)
	if len(usable) == 0 {
		return nil, passderr.New(passderr.KindNoEncryptionKey, "none of the resolved recipients offer a usable storage encryption key")
	}

	var armored bytes.Buffer
	armorWriter, err := armor.Encode(&armored, "PGP MESSAGE", nil)
	if err != nil {
		return nil, passderr.Wrap(passderr.KindEncryptionFailed, "failed to open armor writer", err)
	}

	plaintextWriter, err := openpgp.Encrypt(armorWriter, usable, nil, nil, nil)
	if err != nil {
		return nil, passderr.Wrap(passderr.KindEncryptionFailed, "failed to open encryption stream", err)
	}
	if _, err := plaintextWriter.Write(plaintext); err != nil {
		return nil, passderr.Wrap(passderr.KindEncryptionFailed, "failed to write plaintext into encryption stream", err)
	}
	if err := plaintextWriter.Close(); err != nil {
		return nil, passderr.Wrap(passderr.KindEncryptionFailed, "failed to finalize encryption stream", err)
	}
	if err := armorWriter.Close(); err != nil {
		return nil, passderr.Wrap(passderr.KindEncryptionFailed, "failed to finalize armor writer", err)
	}
	return armored.Bytes(), nil
}

// scanRecipientKeyIDs parses ciphertext far enough to enumerate the
// key-IDs of its public-key encrypted session key (PKESK) packets,
// without needing any private key material.
func scanRecipientKeyIDs(ciphertext []byte) ([]uint64, error) {
	block, err := armor.Decode(bytes.NewReader(ciphertext))
	if err != nil {
		return nil, fmt.Errorf("failed to decode armored message: %w", err)
	}

	reader := packet.NewReader(block.Body)
	var ids []uint64
	for {
		pkt, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			break
		}
		if ek, ok := pkt.(*packet.EncryptedKey); ok {
			ids = append(ids, ek.KeyId)
		}
	}
	return ids, nil
}

// unlockStorageSubkey attempts to decrypt cert's storage encryption
// subkey's secret material with password, trying every eligible subkey in
// turn. It returns true as soon as one unlocks.
func unlockStorageSubkey(cert *openpgp.Entity, password string) bool {
	now := time.Now()
	for _, sub := range cert.Subkeys {
		if sub.PrivateKey == nil || sub.Sig == nil {
			continue
		}
		if !sub.Sig.FlagsValid || !sub.Sig.FlagEncryptStorage {
			continue
		}
		if len(sub.Revocations) > 0 || sub.Sig.KeyExpired(now) {
			continue
		}
		if !sub.PrivateKey.Encrypted {
			return true
		}
		if err := sub.PrivateKey.Decrypt([]byte(password)); err == nil {
			return true
		}
	}
	return false
}

// ResolveRecipients scans ciphertext's PKESK packets and resolves each to a
// certificate known to km, deduplicated by fingerprint. It does not attempt
// to unlock any of the resolved certificates. Both an empty PKESK list and
// a PKESK list whose key-IDs are all unknown to km are reported as
// KindNoRecipientsInCipher: the caller cannot act on a ciphertext it holds
// no usable recipient certificate for, regardless of which case produced
// that state.
func ResolveRecipients(ciphertext []byte, km *keymanager.Manager) ([]*openpgp.Entity, error) {
	keyIDs, err := scanRecipientKeyIDs(ciphertext)
	if err != nil {
		return nil, passderr.Wrap(passderr.KindIO, "failed to scan ciphertext for recipients", err)
	}
	if len(keyIDs) == 0 {
		return nil, passderr.New(passderr.KindNoRecipientsInCipher, "ciphertext carries no recipient key packets")
	}

	seen := map[string]bool{}
	var certs []*openpgp.Entity
	for _, id := range keyIDs {
		cert, ok := km.FindCertByKeyID(id)
		if !ok {
			continue
		}
		fp := keymanager.Fingerprint(cert)
		if seen[fp] {
			continue
		}
		seen[fp] = true
		certs = append(certs, cert)
	}
	if len(certs) == 0 {
		return nil, passderr.New(passderr.KindNoRecipientsInCipher, "none of the ciphertext's recipients are known to this keymanager")
	}
	return certs, nil
}

// UnlockAny returns the first certificate among certs whose storage
// encryption subkey accepts password.
func UnlockAny(certs []*openpgp.Entity, password string) (*openpgp.Entity, bool) {
	for _, cert := range certs {
		if unlockStorageSubkey(cert, password) {
			return cert, true
		}
	}
	return nil, false
}

// Decrypt resolves ciphertext's PKESK recipients through km, unlocks the
// first certificate whose storage encryption subkey accepts password, and
// streams the plaintext out, validating it as UTF-8.
//
// Error precedence matches the declared taxonomy: a ciphertext carrying no
// PKESKs at all fails with KindNoRecipientsInCipher before any key lookup;
// a ciphertext whose recipients are all unknown to km fails with
// KindKeyNotFound; a ciphertext with at least one known recipient but no
// password match fails with KindBadPassword; a decryption stream failure
// after a successful unlock fails with KindDecryptionFailed; and plaintext
// that fails UTF-8 validation fails with KindNotUTF8.
func Decrypt(ciphertext []byte, password string, km *keymanager.Manager) ([]byte, error) {
	keyIDs, err := scanRecipientKeyIDs(ciphertext)
	if err != nil {
		return nil, passderr.Wrap(passderr.KindDecryptionFailed, "failed to scan ciphertext for recipients", err)
	}
	if len(keyIDs) == 0 {
		return nil, passderr.New(passderr.KindNoRecipientsInCipher, "ciphertext carries no recipient key packets")
	}

	var anyKnown bool
	var unlocked *openpgp.Entity
	for _, keyID := range keyIDs {
		cert, ok := km.FindCertByKeyID(keyID)
		if !ok {
			continue
		}
		anyKnown = true
		if unlockStorageSubkey(cert, password) {
			unlocked = cert
			break
		}
	}
	if !anyKnown {
		return nil, passderr.New(passderr.KindKeyNotFound, "none of the ciphertext's recipient key-IDs are known to this keymanager")
	}
	if unlocked == nil {
		return nil, passderr.New(passderr.KindBadPassword, "password did not unlock any known recipient's storage encryption key")
	}

	md, err := openpgp.ReadMessage(bytes.NewReader(ciphertext), openpgp.EntityList{unlocked}, nil, nil)
	if err != nil {
		return nil, passderr.Wrap(passderr.KindDecryptionFailed, "failed to open decryption stream", err)
	}
	plaintext, err := io.ReadAll(md.UnverifiedBody)
	if err != nil {
		return nil, passderr.Wrap(passderr.KindDecryptionFailed, "failed to read decrypted stream", err)
	}
	if !utf8.Valid(plaintext) {
		return nil, passderr.New(passderr.KindNotUTF8, "decrypted content is not valid utf-8")
	}
	return plaintext, nil
}
