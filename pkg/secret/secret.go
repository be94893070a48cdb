// Package secret implements the Secret entity: a logical relative_path
// pairing a ciphertext file under secrets_dir with a metadata sidecar under
// metadata_dir, and the CRUD/move/copy/clone protocol that keeps the two in
// sync under the two-phase metadata write.
//
// Grounded on original_source/src/models/secret.rs, with its
// pure-metadata-update and diagnose-time checksum/fingerprint bugs
// deliberately not reproduced — see DESIGN.md.
package secret

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/ProtonMail/go-crypto/openpgp"

	"github.com/cuemby/passd/pkg/checksum"
	"github.com/cuemby/passd/pkg/config"
	"github.com/cuemby/passd/pkg/cryptoengine"
	"github.com/cuemby/passd/pkg/fsutil"
	"github.com/cuemby/passd/pkg/keymanager"
	"github.com/cuemby/passd/pkg/log"
	"github.com/cuemby/passd/pkg/metadata"
	"github.com/cuemby/passd/pkg/passderr"
)

// Secret owns a relative_path and a shared, read-only reference to the
// process Config and KeyManager. It owns no mutable state across calls.
type Secret struct {
	RelativePath string

	cfg *config.Config
	km  *keymanager.Manager
}

// New builds a Secret bound to relativePath, cfg, and km. Constructing a
// Secret does not touch disk.
func New(cfg *config.Config, km *keymanager.Manager, relativePath string) *Secret {
	return &Secret{RelativePath: relativePath, cfg: cfg, km: km}
}

// CiphertextPath returns the absolute path of relativePath's ciphertext
// file under cfg.SecretsDir.
func CiphertextPath(cfg *config.Config, relativePath string) string {
	return filepath.Join(cfg.SecretsDir, relativePath+".pgp")
}

// MetadataPath returns the absolute path of relativePath's metadata
// sidecar under cfg.MetadataDir.
func MetadataPath(cfg *config.Config, relativePath string) string {
	return filepath.Join(cfg.MetadataDir, relativePath+".meta.toml")
}

func (s *Secret) CiphertextPath() string { return CiphertextPath(s.cfg, s.RelativePath) }
func (s *Secret) MetadataPath() string   { return MetadataPath(s.cfg, s.RelativePath) }

func saturatingIncrement(v uint64) uint64 {
	if v == math.MaxUint64 {
		return v
	}
	return v + 1
}

func writeMetadataTwoPhase(path string, m metadata.Metadata) error {
	digest, err := metadata.ChecksumMetaDigest(m)
	if err != nil {
		return passderr.Wrap(passderr.KindInvalidMetadata, "failed to compute metadata checksum", err)
	}
	m.ChecksumMeta = digest
	data, err := metadata.Serialize(m)
	if err != nil {
		return passderr.Wrap(passderr.KindInvalidMetadata, "failed to serialize metadata", err)
	}
	if err := fsutil.SecureWrite(path, data); err != nil {
		return passderr.Wrap(passderr.KindIO, "failed to write metadata", err)
	}
	return nil
}

// Content returns the raw ciphertext bytes on disk, without decrypting.
func (s *Secret) Content() ([]byte, error) {
	data, err := os.ReadFile(s.CiphertextPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, passderr.New(passderr.KindNotFound, fmt.Sprintf("secret %q does not exist", s.RelativePath))
		}
		return nil, passderr.Wrap(passderr.KindIO, "failed to read ciphertext", err)
	}
	return data, nil
}

// Metadata returns the parsed sidecar metadata.
func (s *Secret) Metadata() (metadata.Metadata, error) {
	data, err := os.ReadFile(s.MetadataPath())
	if err != nil {
		if os.IsNotExist(err) {
			return metadata.Metadata{}, passderr.New(passderr.KindNotFound, fmt.Sprintf("metadata for %q does not exist", s.RelativePath))
		}
		return metadata.Metadata{}, passderr.Wrap(passderr.KindIO, "failed to read metadata", err)
	}
	m, err := metadata.Parse(data)
	if err != nil {
		return metadata.Metadata{}, passderr.Wrap(passderr.KindInvalidMetadata, "failed to parse metadata", err)
	}
	return m, nil
}

// Plaintext decrypts the ciphertext with password, with no side effects on
// disk.
func (s *Secret) Plaintext(password string) ([]byte, error) {
	ciphertext, err := s.Content()
	if err != nil {
		return nil, err
	}
	return cryptoengine.Decrypt(ciphertext, password, s.km)
}

// exists reports whether both the ciphertext and metadata files are
// present.
func (s *Secret) exists() bool {
	return fsutil.Exists(s.CiphertextPath()) && fsutil.Exists(s.MetadataPath())
}

// Create encrypts content to the certificates resolved from fingerprints
// and writes the ciphertext/metadata pair. Neither file may already exist.
func (s *Secret) Create(content []byte, template metadata.BaseMetadata, fingerprints []string) error {
	logger := log.WithSecret(s.RelativePath)

	if len(fingerprints) == 0 {
		return passderr.New(passderr.KindInvalidArgument, "create requires at least one recipient fingerprint")
	}
	if fsutil.Exists(s.CiphertextPath()) || fsutil.Exists(s.MetadataPath()) {
		return passderr.New(passderr.KindAlreadyExists, fmt.Sprintf("secret %q already exists", s.RelativePath))
	}

	resolved, err := s.resolveCerts(fingerprints)
	if err != nil {
		return err
	}

	ciphertext, err := cryptoengine.Encrypt(content, resolved)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	m := metadata.Metadata{
		Path:          s.RelativePath,
		Template:      template,
		Modifications: 0,
		Fingerprint:   keymanager.Fingerprint(resolved[0]),
		CreatedAt:     now,
		UpdatedAt:     now,
		ChecksumMain:  checksum.OfBytes(ciphertext),
		ChecksumMeta:  "",
	}

	if err := fsutil.SecureCreateDirAll(s.cfg.SecretsDir, filepath.Dir(s.CiphertextPath())); err != nil {
		return err
	}
	if err := fsutil.SecureCreateDirAll(s.cfg.MetadataDir, filepath.Dir(s.MetadataPath())); err != nil {
		return err
	}
	if err := fsutil.SecureWrite(s.CiphertextPath(), ciphertext); err != nil {
		return passderr.Wrap(passderr.KindIO, "failed to write ciphertext", err)
	}
	if err := writeMetadataTwoPhase(s.MetadataPath(), m); err != nil {
		return err
	}

	logger.Info().Msg("secret created")
	return nil
}

// UpdateOptions carries update's three optional arguments. A nil Content,
// nil MetadataOverlay, and nil RecipientFingerprints all mean "not
// provided"; callers that want to set content to the empty string must
// pass a non-nil empty slice.
type UpdateOptions struct {
	Content               []byte
	MetadataOverlay       *metadata.BaseMetadata
	RecipientFingerprints []string
	Password              string
}

// Update applies opts to an existing secret. Proving possession of a
// password that unlocks a current recipient is required even for
// metadata-only updates.
func (s *Secret) Update(opts UpdateOptions) error {
	logger := log.WithSecret(s.RelativePath)

	if opts.Content == nil && opts.MetadataOverlay == nil && opts.RecipientFingerprints == nil {
		return passderr.New(passderr.KindInvalidArgument, "update requires content, metadata_overlay, or recipient_fingerprints")
	}
	if opts.RecipientFingerprints != nil && len(opts.RecipientFingerprints) == 0 {
		return passderr.New(passderr.KindInvalidArgument, "recipient_fingerprints, if provided, must be non-empty")
	}
	if !s.exists() {
		return passderr.New(passderr.KindNotFound, fmt.Sprintf("secret %q does not exist", s.RelativePath))
	}

	ciphertext, err := s.Content()
	if err != nil {
		return err
	}

	currentCerts, err := cryptoengine.ResolveRecipients(ciphertext, s.km)
	if err != nil {
		return err
	}
	if _, ok := cryptoengine.UnlockAny(currentCerts, opts.Password); !ok {
		return passderr.New(passderr.KindBadPassword, "password did not unlock any current recipient")
	}

	existing, err := s.Metadata()
	if err != nil {
		return err
	}

	updated := existing
	if opts.MetadataOverlay != nil {
		updated = metadata.Merge(existing, *opts.MetadataOverlay)
	}

	if opts.Content != nil || opts.RecipientFingerprints != nil {
		newCerts := currentCerts
		if opts.RecipientFingerprints != nil {
			newCerts, err = s.resolveCerts(opts.RecipientFingerprints)
			if err != nil {
				return err
			}
		}

		var newPlaintext []byte
		if opts.Content != nil {
			newPlaintext = opts.Content
		} else {
			newPlaintext, err = cryptoengine.Decrypt(ciphertext, opts.Password, s.km)
			if err != nil {
				return err
			}
		}

		newCiphertext, err := cryptoengine.Encrypt(newPlaintext, newCerts)
		if err != nil {
			return err
		}
		if err := fsutil.SecureWrite(s.CiphertextPath(), newCiphertext); err != nil {
			return passderr.Wrap(passderr.KindIO, "failed to write ciphertext", err)
		}

		updated.ChecksumMain = checksum.OfBytes(newCiphertext)
		updated.Fingerprint = keymanager.Fingerprint(newCerts[0])
		if opts.Content != nil {
			updated.Modifications = saturatingIncrement(updated.Modifications)
		}
	}

	updated.UpdatedAt = time.Now().UTC()
	updated.ChecksumMeta = ""

	if err := writeMetadataTwoPhase(s.MetadataPath(), updated); err != nil {
		return err
	}

	logger.Info().Msg("secret updated")
	return nil
}

// Remove authorizes with password and deletes both files. A missing file
// is not fatal; other I/O failures are aggregated into a KindRemovalErrors
// error.
func (s *Secret) Remove(password string) error {
	ciphertext, err := s.Content()
	if err != nil {
		return err
	}
	certs, err := cryptoengine.ResolveRecipients(ciphertext, s.km)
	if err != nil {
		return err
	}
	if _, ok := cryptoengine.UnlockAny(certs, password); !ok {
		return passderr.New(passderr.KindBadPassword, "password did not unlock any recipient")
	}

	var failures []error
	for _, path := range []string{s.CiphertextPath(), s.MetadataPath()} {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			failures = append(failures, fmt.Errorf("%s: %w", path, err))
		}
	}
	if len(failures) > 0 {
		return passderr.Wrap(passderr.KindRemovalErrors, "failed to remove one or more files", errors.Join(failures...))
	}

	log.WithSecret(s.RelativePath).Info().Msg("secret removed")
	return nil
}

// MoveTo renames both files to destRelativePath's paths, creating parent
// directories as needed, and corrects the destination metadata's path
// field to match its new relative_path. If the metadata rename fails after
// the ciphertext rename succeeded, the error says so explicitly; there is
// no automatic rollback.
func (s *Secret) MoveTo(destRelativePath string) (*Secret, error) {
	dest := New(s.cfg, s.km, destRelativePath)

	if err := fsutil.SecureCreateDirAll(s.cfg.SecretsDir, filepath.Dir(dest.CiphertextPath())); err != nil {
		return nil, err
	}
	if err := fsutil.SecureCreateDirAll(s.cfg.MetadataDir, filepath.Dir(dest.MetadataPath())); err != nil {
		return nil, err
	}

	if err := os.Rename(s.CiphertextPath(), dest.CiphertextPath()); err != nil {
		return nil, passderr.Wrap(passderr.KindIO, "failed to move ciphertext", err)
	}
	if err := os.Rename(s.MetadataPath(), dest.MetadataPath()); err != nil {
		return nil, passderr.Wrap(passderr.KindIO, "ciphertext moved but metadata move failed; run diagnose", err)
	}

	m, err := dest.Metadata()
	if err != nil {
		return dest, err
	}
	m.Path = dest.RelativePath
	if err := writeMetadataTwoPhase(dest.MetadataPath(), m); err != nil {
		return dest, err
	}
	return dest, nil
}

// CopyTo duplicates both files byte-for-byte. The destination metadata's
// path field is left pointing at the source relative_path; diagnose will
// flag this as SecretPathMismatch. Callers wanting a semantically-correct
// copy should follow up with Update, or use CloneTo.
func (s *Secret) CopyTo(destRelativePath string) (*Secret, error) {
	dest := New(s.cfg, s.km, destRelativePath)

	if fsutil.Exists(dest.CiphertextPath()) || fsutil.Exists(dest.MetadataPath()) {
		return nil, passderr.New(passderr.KindAlreadyExists, fmt.Sprintf("secret %q already exists", destRelativePath))
	}
	if err := fsutil.SecureCreateDirAll(s.cfg.SecretsDir, filepath.Dir(dest.CiphertextPath())); err != nil {
		return nil, err
	}
	if err := fsutil.SecureCreateDirAll(s.cfg.MetadataDir, filepath.Dir(dest.MetadataPath())); err != nil {
		return nil, err
	}

	if err := copyFileBytes(s.CiphertextPath(), dest.CiphertextPath()); err != nil {
		return nil, err
	}
	if err := copyFileBytes(s.MetadataPath(), dest.MetadataPath()); err != nil {
		return nil, err
	}
	return dest, nil
}

func copyFileBytes(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return passderr.Wrap(passderr.KindIO, fmt.Sprintf("failed to read %s", src), err)
	}
	if err := fsutil.SecureWrite(dst, data); err != nil {
		return passderr.Wrap(passderr.KindIO, fmt.Sprintf("failed to write %s", dst), err)
	}
	return nil
}

// CloneTo decrypts the source with password and creates destRelativePath
// from scratch with the decrypted plaintext, the source's BaseMetadata
// template, and a fresh recipient set. The destination gets its own
// fingerprint, checksums, and timestamps.
func (s *Secret) CloneTo(destRelativePath string, fingerprints []string, password string) (*Secret, error) {
	plaintext, err := s.Plaintext(password)
	if err != nil {
		return nil, err
	}
	existing, err := s.Metadata()
	if err != nil {
		return nil, err
	}

	dest := New(s.cfg, s.km, destRelativePath)
	if err := dest.Create(plaintext, existing.Template, fingerprints); err != nil {
		return nil, err
	}
	return dest, nil
}

// resolveCerts looks up each fingerprint in the KeyManager, preserving the
// caller's ordering so "first recipient" is well defined for the
// fingerprint stamped into metadata.
func (s *Secret) resolveCerts(fingerprints []string) ([]*openpgp.Entity, error) {
	certs := make([]*openpgp.Entity, 0, len(fingerprints))
	for _, fp := range fingerprints {
		cert, err := s.km.GetCert(fp)
		if err != nil {
			return nil, err
		}
		certs = append(certs, cert)
	}
	return certs, nil
}
