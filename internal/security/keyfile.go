package security

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// KeyFile holds the installation's master key material. The key is
// generated once per installation; repeated loads return byte-identical
// material.
type KeyFile struct {
	Key       []byte
	InstallID uuid.UUID
}

// keyFileDoc is the on-disk representation.
type keyFileDoc struct {
	Key       string `json:"key"`
	InstallID string `json:"install_id"`
}

// LoadOrCreateKeyFile loads the key file at path, creating it with fresh
// key material and a new installation ID if it does not exist. The file
// is written with 0600 permissions.
func LoadOrCreateKeyFile(path string) (*KeyFile, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		return parseKeyFile(data)
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read key file: %w", err)
	}

	key, err := GenerateKey(KeySize)
	if err != nil {
		return nil, err
	}
	kf := &KeyFile{Key: key, InstallID: uuid.New()}
	if err := WriteKeyFile(path, kf); err != nil {
		return nil, err
	}
	return kf, nil
}

// LoadKeyFile loads an existing key file. Unlike LoadOrCreateKeyFile it
// never creates one; a missing file surfaces as os.ErrNotExist.
func LoadKeyFile(path string) (*KeyFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read key file: %w", err)
	}
	return parseKeyFile(data)
}

// WriteKeyFile atomically persists key material: the document is written
// to a temporary file in the same directory and renamed over path, so a
// crash never leaves a truncated key file.
func WriteKeyFile(path string, kf *KeyFile) error {
	if err := ValidateKeyStrength(kf.Key); err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("create key directory: %w", err)
	}

	doc := keyFileDoc{
		Key:       base64.StdEncoding.EncodeToString(kf.Key),
		InstallID: kf.InstallID.String(),
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode key file: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".keyfile-*")
	if err != nil {
		return fmt.Errorf("create temp key file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return fmt.Errorf("set key file permissions: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write key file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync key file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close key file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("install key file: %w", err)
	}
	return nil
}

func parseKeyFile(data []byte) (*KeyFile, error) {
	var doc keyFileDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse key file: %w", err)
	}

	key, err := base64.StdEncoding.DecodeString(doc.Key)
	if err != nil {
		return nil, fmt.Errorf("decode key material: %w", err)
	}
	if err := ValidateKeyStrength(key); err != nil {
		return nil, err
	}

	id, err := uuid.Parse(doc.InstallID)
	if err != nil {
		return nil, fmt.Errorf("parse install id: %w", err)
	}

	return &KeyFile{Key: key, InstallID: id}, nil
}
