package checksum

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/semmidev/dumpcycle/internal/domain"
)

// MD5 writes and checks sidecars in md5sum(1) format: "<hex>  <name>\n".
type MD5 struct{}

func NewMD5() *MD5 {
	return &MD5{}
}

func (MD5) Sum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func (m MD5) WriteSidecar(path, sidecarPath string) (string, error) {
	sum, err := m.Sum(path)
	if err != nil {
		return "", err
	}
	line := fmt.Sprintf("%s  %s\n", sum, filepath.Base(path))
	if err := os.WriteFile(sidecarPath, []byte(line), 0o644); err != nil {
		return "", fmt.Errorf("failed to write checksum file: %w", err)
	}
	return sum, nil
}

// Verify compares the digest of path against the first field of the
// sidecar. The file name recorded in the sidecar is not checked since
// restores may fetch objects under a different key.
func (m MD5) Verify(path, sidecarPath string) error {
	raw, err := os.ReadFile(sidecarPath)
	if err != nil {
		return fmt.Errorf("failed to read checksum file: %w", err)
	}
	fields := strings.Fields(string(raw))
	if len(fields) == 0 {
		return fmt.Errorf("%w: %s is empty", domain.ErrChecksumMismatch, filepath.Base(sidecarPath))
	}
	expected := strings.ToLower(fields[0])

	actual, err := m.Sum(path)
	if err != nil {
		return err
	}
	if actual != expected {
		return fmt.Errorf("%w: %s: expected %s, got %s",
			domain.ErrChecksumMismatch, filepath.Base(path), expected, actual)
	}
	return nil
}
