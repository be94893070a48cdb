package vault

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/cuemby/passd/pkg/checksum"
	"github.com/cuemby/passd/pkg/config"
	"github.com/cuemby/passd/pkg/cryptoengine"
	"github.com/cuemby/passd/pkg/fsutil"
	"github.com/cuemby/passd/pkg/keymanager"
	"github.com/cuemby/passd/pkg/metadata"
	"github.com/cuemby/passd/pkg/secret"
)

// Severity classifies a DiagnosticResult for display ordering; it carries
// no behavioral weight of its own.
type Severity string

const (
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// IssueType names one of the invariant violations diagnose can detect.
type IssueType string

const (
	IssueUnsafeDirectoryPermissions IssueType = "unsafe_directory_permissions"
	IssueUnsafeFilePermissions      IssueType = "unsafe_file_permissions"
	IssueRogueFile                  IssueType = "rogue_file"
	IssueOrphanSecret               IssueType = "orphan_secret"
	IssueOrphanMetadata             IssueType = "orphan_metadata"
	IssueInvalidMetadata            IssueType = "invalid_metadata"
	IssueSecretPathMismatch         IssueType = "secret_path_mismatch"
	IssueMissingAttachment          IssueType = "missing_attachment"
	IssueInvalidTimestamps          IssueType = "invalid_timestamps"
	IssueModificationCountMismatch  IssueType = "modification_count_mismatch"
	IssueSecretChecksumMismatch     IssueType = "secret_checksum_mismatch"
	IssueMetadataChecksumMismatch   IssueType = "metadata_checksum_mismatch"
	IssueSecretFingerprintMismatch  IssueType = "secret_fingerprint_mismatch"
)

// DiagnosticResult reports one problem found against one path.
type DiagnosticResult struct {
	Severity Severity
	Issue    IssueType
	Path     string
	Message  string
}

func warn(issue IssueType, path, msg string) DiagnosticResult {
	return DiagnosticResult{Severity: SeverityWarning, Issue: issue, Path: path, Message: msg}
}

func fail(issue IssueType, path, msg string) DiagnosticResult {
	return DiagnosticResult{Severity: SeverityError, Issue: issue, Path: path, Message: msg}
}

// Diagnose audits the store's directory permissions and every invariant
// linking a secret's ciphertext to its metadata sidecar, without requiring
// any password: the fingerprint check resolves the ciphertext's PKESK
// recipients through km rather than decrypting, and the checksum checks run
// over ciphertext bytes as they sit on disk.
//
// metadata_dir and secrets_dir are walked as one tree when they're the same
// directory (a rogue file is anything that isn't a .pgp or .meta.toml pair
// member), and as two separate trees otherwise.
func Diagnose(cfg *config.Config, km *keymanager.Manager) []DiagnosticResult {
	var results []DiagnosticResult
	sameDir := cfg.MetadataDir == cfg.SecretsDir

	walkMetadataTree(cfg, km, sameDir, &results)
	if !sameDir {
		walkSecretsTree(cfg, &results)
	}
	return results
}

func walkMetadataTree(cfg *config.Config, km *keymanager.Manager, sameDir bool, results *[]DiagnosticResult) {
	if !fsutil.Exists(cfg.MetadataDir) {
		return
	}
	_ = filepath.WalkDir(cfg.MetadataDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if path != cfg.MetadataDir && !fsutil.IsSecureDir(path) {
				*results = append(*results, warn(IssueUnsafeDirectoryPermissions, path, "directory permissions are not restricted to the owner"))
			}
			return nil
		}

		name := d.Name()
		isMeta := strings.HasSuffix(name, ".meta.toml")
		isCiphertext := sameDir && strings.HasSuffix(name, ".pgp")

		if !isMeta && !isCiphertext {
			*results = append(*results, fail(IssueRogueFile, path, "file does not belong to either the metadata or secret namespace"))
			return nil
		}
		if !fsutil.IsSecureFile(path) {
			*results = append(*results, warn(IssueUnsafeFilePermissions, path, "file permissions are not restricted to the owner"))
		}

		if isCiphertext {
			rel, err := filepath.Rel(cfg.MetadataDir, path)
			if err != nil {
				return nil
			}
			relativePath := filepath.ToSlash(strings.TrimSuffix(rel, ".pgp"))
			if !fsutil.Exists(secret.MetadataPath(cfg, relativePath)) {
				*results = append(*results, fail(IssueOrphanSecret, path, "ciphertext has no matching metadata sidecar"))
			}
			return nil
		}

		diagnoseMetadataFile(cfg, km, path, results)
		return nil
	})
}

func diagnoseMetadataFile(cfg *config.Config, km *keymanager.Manager, path string, results *[]DiagnosticResult) {
	rel, err := filepath.Rel(cfg.MetadataDir, path)
	if err != nil {
		return
	}
	relativePath := filepath.ToSlash(strings.TrimSuffix(rel, ".meta.toml"))

	data, err := os.ReadFile(path)
	if err != nil {
		*results = append(*results, fail(IssueInvalidMetadata, path, "failed to read metadata sidecar: "+err.Error()))
		return
	}
	m, err := metadata.Parse(data)
	if err != nil {
		*results = append(*results, fail(IssueInvalidMetadata, path, "failed to parse metadata sidecar: "+err.Error()))
		return
	}

	if m.Path != relativePath {
		*results = append(*results, fail(IssueSecretPathMismatch, path, "metadata path field does not match its location on disk"))
	}
	for _, attachment := range m.Template.Attachments {
		attachmentPath := filepath.Join(cfg.SecretsDir, attachment)
		if !fsutil.Exists(attachmentPath) {
			*results = append(*results, fail(IssueMissingAttachment, path, "attachment "+attachment+" does not exist under the secrets directory"))
		}
	}
	if m.UpdatedAt.Before(m.CreatedAt) {
		*results = append(*results, fail(IssueInvalidTimestamps, path, "updated_at precedes created_at"))
	}
	if m.Modifications == 0 && m.UpdatedAt.After(m.CreatedAt) {
		*results = append(*results, warn(IssueModificationCountMismatch, path, "updated_at advanced but modifications is still zero"))
	}

	ciphertextPath := secret.CiphertextPath(cfg, relativePath)
	ciphertext, err := os.ReadFile(ciphertextPath)
	if err != nil {
		*results = append(*results, fail(IssueOrphanMetadata, path, "metadata sidecar has no matching ciphertext"))
		return
	}

	if actual := checksum.OfBytes(ciphertext); actual != m.ChecksumMain {
		*results = append(*results, fail(IssueSecretChecksumMismatch, path, "checksum_main does not match the ciphertext on disk"))
	}
	if expected, err := metadata.ChecksumMetaDigest(m); err == nil && expected != m.ChecksumMeta {
		*results = append(*results, fail(IssueMetadataChecksumMismatch, path, "checksum_meta does not match the recomputed digest"))
	}

	if certs, err := cryptoengine.ResolveRecipients(ciphertext, km); err == nil {
		found := false
		for _, cert := range certs {
			if keymanager.Fingerprint(cert) == strings.ToUpper(m.Fingerprint) {
				found = true
				break
			}
		}
		if !found {
			*results = append(*results, fail(IssueSecretFingerprintMismatch, path, "fingerprint field does not match any of the ciphertext's resolvable recipients"))
		}
	} else {
		*results = append(*results, fail(IssueSecretFingerprintMismatch, path, "ciphertext's recipients could not be resolved against the stored fingerprint"))
	}
}

func walkSecretsTree(cfg *config.Config, results *[]DiagnosticResult) {
	if !fsutil.Exists(cfg.SecretsDir) {
		return
	}
	_ = filepath.WalkDir(cfg.SecretsDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if path != cfg.SecretsDir && !fsutil.IsSecureDir(path) {
				*results = append(*results, warn(IssueUnsafeDirectoryPermissions, path, "directory permissions are not restricted to the owner"))
			}
			return nil
		}
		if !fsutil.IsSecureFile(path) {
			*results = append(*results, warn(IssueUnsafeFilePermissions, path, "file permissions are not restricted to the owner"))
		}
		if !strings.HasSuffix(d.Name(), ".pgp") {
			*results = append(*results, fail(IssueRogueFile, path, "file does not belong to the secret namespace"))
			return nil
		}

		rel, err := filepath.Rel(cfg.SecretsDir, path)
		if err != nil {
			return nil
		}
		relativePath := filepath.ToSlash(strings.TrimSuffix(rel, ".pgp"))
		if !fsutil.Exists(secret.MetadataPath(cfg, relativePath)) {
			*results = append(*results, fail(IssueOrphanSecret, path, "ciphertext has no matching metadata sidecar"))
		}
		return nil
	})
}
