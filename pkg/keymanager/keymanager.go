// Package keymanager loads and indexes the OpenPGP certificates passd uses
// as recipients and decryption identities, keyed by fingerprint and by
// every key-ID a certificate owns (primary plus subkeys), so
// pkg/cryptoengine can resolve a PKESK's key-ID back to a certificate
// without re-scanning the keys directory on every decrypt.
//
// Grounded on the certificate parsing in
// _examples/RayanDoudech-vault/vault/seal_config.go (openpgp.ReadEntity
// over a PGP key blob) and _examples/other_examples's lorduskordus-aerion
// encryptor, generalized to a directory of certificates instead of a
// single inline key.
package keymanager

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/ProtonMail/go-crypto/openpgp"

	"github.com/cuemby/passd/pkg/log"
	"github.com/cuemby/passd/pkg/passderr"
)

// Manager is safe for concurrent reads; (re)loading replaces the index
// atomically under a write lock.
type Manager struct {
	keysDir        string
	publicKeyPath  string
	privateKeyPath string

	mu            sync.RWMutex
	byFingerprint map[string]*openpgp.Entity
	byKeyID       map[uint64]*openpgp.Entity
	loaded        bool
}

// New builds a Manager over the certificates found in keysDir plus the
// standalone publicKeyPath/privateKeyPath files, if set. Loading is lazy:
// the keys directory is scanned on first lookup, not at construction.
func New(keysDir, publicKeyPath, privateKeyPath string) *Manager {
	return &Manager{
		keysDir:        keysDir,
		publicKeyPath:  publicKeyPath,
		privateKeyPath: privateKeyPath,
	}
}

// Reload forces a rescan of the keys directory on the next lookup,
// picking up certificates added or removed since the last load.
func (m *Manager) Reload() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loaded = false
}

func fingerprintHex(e *openpgp.Entity) string {
	return strings.ToUpper(fmt.Sprintf("%x", e.PrimaryKey.Fingerprint))
}

func (m *Manager) indexEntity(e *openpgp.Entity) {
	if e.PrimaryKey == nil {
		return
	}
	fp := fingerprintHex(e)
	m.byFingerprint[fp] = e
	m.byKeyID[e.PrimaryKey.KeyId] = e
	for _, sub := range e.Subkeys {
		if sub.PublicKey != nil {
			m.byKeyID[sub.PublicKey.KeyId] = e
		}
	}
}

func (m *Manager) loadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to open key file %s: %w", path, err)
	}
	defer f.Close()

	entities, err := openpgp.ReadArmoredKeyRing(f)
	if err != nil {
		log.WithComponent("keymanager").Warn().Err(err).Str("path", path).Msg("skipping unreadable key file")
		return nil
	}
	for _, e := range entities {
		m.indexEntity(e)
	}
	return nil
}

func (m *Manager) ensureLoaded() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loaded {
		return nil
	}

	m.byFingerprint = map[string]*openpgp.Entity{}
	m.byKeyID = map[uint64]*openpgp.Entity{}

	if m.keysDir != "" {
		entries, err := os.ReadDir(m.keysDir)
		if err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to read keys directory %s: %w", m.keysDir, err)
		}
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			if err := m.loadFile(filepath.Join(m.keysDir, entry.Name())); err != nil {
				return err
			}
		}
	}
	if m.publicKeyPath != "" {
		if err := m.loadFile(m.publicKeyPath); err != nil {
			return err
		}
	}
	if m.privateKeyPath != "" {
		if err := m.loadFile(m.privateKeyPath); err != nil {
			return err
		}
	}

	m.loaded = true
	return nil
}

// GetCert resolves a certificate by its uppercase hex fingerprint.
func (m *Manager) GetCert(fingerprint string) (*openpgp.Entity, error) {
	if err := m.ensureLoaded(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.byFingerprint[strings.ToUpper(fingerprint)]
	if !ok {
		return nil, passderr.New(passderr.KindKeyNotFound, fmt.Sprintf("no certificate found for fingerprint %s", fingerprint))
	}
	return e, nil
}

// FindCertByKeyID resolves a certificate owning the given key-ID, whether
// that key-ID belongs to the certificate's primary key or one of its
// subkeys.
func (m *Manager) FindCertByKeyID(keyID uint64) (*openpgp.Entity, bool) {
	if err := m.ensureLoaded(); err != nil {
		return nil, false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.byKeyID[keyID]
	return e, ok
}

// Fingerprint returns the uppercase hex fingerprint of e's primary key.
func Fingerprint(e *openpgp.Entity) string {
	return fingerprintHex(e)
}
