package fetch

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/ProtonMail/go-crypto/openpgp" //nolint:staticcheck // Using ProtonMail's maintained fork

	"github.com/ZebulonRouseFrantzich/keg/internal/manifest"
)

// checkSignature verifies the detached signature of archivePath when the
// variant publishes one and a keyring is configured.
func (f *Fetcher) checkSignature(ctx context.Context, m *manifest.Manifest, v *manifest.Variant, archivePath string) error {
	sigURL := v.SignatureLocation(m.Version)
	if sigURL == "" {
		return nil
	}
	if f.keyringPath == "" {
		f.logger.Debug("signature published but no keyring configured", "package", m.Name, "url", sigURL)
		return nil
	}

	sigPath := archivePath + ".sig"
	if _, _, err := f.download(ctx, sigURL, sigPath); err != nil {
		return &SignatureError{Package: m.Name, URL: sigURL, Err: err}
	}
	defer os.Remove(sigPath)

	keyring, err := loadKeyring(f.keyringPath)
	if err != nil {
		return &SignatureError{Package: m.Name, URL: sigURL, Err: err}
	}
	if err := verifyDetached(keyring, archivePath, sigPath); err != nil {
		return &SignatureError{Package: m.Name, URL: sigURL, Err: err}
	}

	f.logger.Debug("signature verified", "package", m.Name, "url", sigURL)
	return nil
}

// verifyDetached checks an armored or binary detached signature.
func verifyDetached(keyring openpgp.EntityList, archivePath, sigPath string) error {
	archive, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer archive.Close()

	sig, err := os.Open(sigPath)
	if err != nil {
		return fmt.Errorf("open signature: %w", err)
	}
	defer sig.Close()

	_, err = openpgp.CheckArmoredDetachedSignature(keyring, archive, sig, nil)
	if err != nil {
		// Try non-armored signature
		if _, seekErr := archive.Seek(0, io.SeekStart); seekErr != nil {
			return seekErr
		}
		if _, seekErr := sig.Seek(0, io.SeekStart); seekErr != nil {
			return seekErr
		}
		_, err = openpgp.CheckDetachedSignature(keyring, archive, sig, nil)
	}
	if err != nil {
		return fmt.Errorf("verify signature: %w", err)
	}
	return nil
}

// loadKeyring reads an armored or binary OpenPGP keyring.
func loadKeyring(path string) (openpgp.EntityList, error) {
	keyringFile, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open keyring: %w", err)
	}
	defer keyringFile.Close()

	keyring, err := openpgp.ReadArmoredKeyRing(keyringFile)
	if err != nil {
		// Try reading as non-armored keyring
		if _, seekErr := keyringFile.Seek(0, io.SeekStart); seekErr != nil {
			return nil, seekErr
		}
		keyring, err = openpgp.ReadKeyRing(keyringFile)
		if err != nil {
			return nil, fmt.Errorf("read keyring: %w", err)
		}
	}

	if len(keyring) == 0 {
		return nil, fmt.Errorf("keyring is empty")
	}
	return keyring, nil
}
