// Package savedata persists the session's opaque state blob.
//
// The blob is written whole on every save: a temporary file in the same
// directory is written, synced and renamed over the previous save. When a
// passphrase is configured the blob is encrypted with age's scrypt
// passphrase mode. Encrypted saves are recognised by the age header, so a
// plain save can be loaded with or without a passphrase and is encrypted on
// the next write.
package savedata

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"filippo.io/age"
	"github.com/sirupsen/logrus"
)

var (
	// ErrNoSave is returned by Load when there is no save file.
	ErrNoSave = errors.New("no save file")
	// ErrPassphraseRequired is returned when an encrypted save is loaded
	// without a passphrase.
	ErrPassphraseRequired = errors.New("save file is encrypted; passphrase required")
)

var ageHeader = []byte("age-encryption.org/v1\n")

// Store reads and writes one save file.
type Store struct {
	Path       string
	Passphrase string
	// WorkFactor is the scrypt log2 cost for new encryptions. Zero keeps
	// age's default.
	WorkFactor int
}

// Encrypted reports whether data is an age-encrypted save.
func Encrypted(data []byte) bool {
	return bytes.HasPrefix(data, ageHeader)
}

// Load returns the stored blob.
func (s *Store) Load() ([]byte, error) {
	raw, err := os.ReadFile(s.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNoSave
		}
		return nil, fmt.Errorf("reading save file: %w", err)
	}

	if !Encrypted(raw) {
		logrus.WithFields(logrus.Fields{
			"function": "Store.Load",
			"path":     s.Path,
			"size":     len(raw),
		}).Debug("Loaded plain save file")
		return raw, nil
	}

	if s.Passphrase == "" {
		return nil, ErrPassphraseRequired
	}
	identity, err := age.NewScryptIdentity(s.Passphrase)
	if err != nil {
		return nil, fmt.Errorf("creating scrypt identity: %w", err)
	}
	r, err := age.Decrypt(bytes.NewReader(raw), identity)
	if err != nil {
		return nil, fmt.Errorf("decrypting save file: %w", err)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading decrypted save: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"function": "Store.Load",
		"path":     s.Path,
		"size":     len(data),
	}).Debug("Loaded encrypted save file")

	return data, nil
}

// Save replaces the stored blob with data.
func (s *Store) Save(data []byte) error {
	payload := data
	if s.Passphrase != "" {
		enc, err := s.encrypt(data)
		if err != nil {
			return err
		}
		payload = enc
	}

	dir := filepath.Dir(s.Path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating save directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.Path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp save: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("writing save: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("syncing save: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("closing save: %w", err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		cleanup()
		return fmt.Errorf("setting save permissions: %w", err)
	}
	if err := os.Rename(tmpName, s.Path); err != nil {
		cleanup()
		return fmt.Errorf("replacing save: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"function":  "Store.Save",
		"path":      s.Path,
		"size":      len(data),
		"encrypted": s.Passphrase != "",
	}).Debug("Session state saved")

	return nil
}

func (s *Store) encrypt(data []byte) ([]byte, error) {
	recipient, err := age.NewScryptRecipient(s.Passphrase)
	if err != nil {
		return nil, fmt.Errorf("creating scrypt recipient: %w", err)
	}
	if s.WorkFactor > 0 {
		recipient.SetWorkFactor(s.WorkFactor)
	}
	var buf bytes.Buffer
	w, err := age.Encrypt(&buf, recipient)
	if err != nil {
		return nil, fmt.Errorf("creating encrypted writer: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("encrypting save: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("finalizing encryption: %w", err)
	}
	return buf.Bytes(), nil
}
