package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// LocalReceiptStore keeps payment receipts under a root directory.
// Paths returned by Save are relative to that root.
type LocalReceiptStore struct {
	root string
}

func NewLocalReceiptStore(root string) (*LocalReceiptStore, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("receipt directory is required")
	}
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("create receipt directory: %w", err)
	}
	return &LocalReceiptStore{root: root}, nil
}

// Save writes content as justificatifs/<uuid><ext>. The client-supplied name
// only contributes its extension.
func (s *LocalReceiptStore) Save(ctx context.Context, name string, content io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	rel := filepath.Join("justificatifs", uuid.NewString()+strings.ToLower(filepath.Ext(name)))
	full := filepath.Join(s.root, rel)
	if err := os.MkdirAll(filepath.Dir(full), 0o750); err != nil {
		return "", err
	}

	f, err := os.OpenFile(full, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o640)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(f, content); err != nil {
		_ = f.Close()
		_ = os.Remove(full)
		return "", err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(full)
		return "", err
	}
	return filepath.ToSlash(rel), nil
}

func (s *LocalReceiptStore) Delete(_ context.Context, path string) error {
	clean := filepath.Clean(filepath.FromSlash(path))
	if filepath.IsAbs(clean) || strings.HasPrefix(clean, "..") {
		return fmt.Errorf("receipt path %q escapes the store", path)
	}
	err := os.Remove(filepath.Join(s.root, clean))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
