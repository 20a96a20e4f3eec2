// Package modelstore resolves the segmentation model on disk, fetching
// and verifying it on first use.
package modelstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/snapcommit/snapcommit/internal/logger"
)

// DefaultModelURL is the published U2Net ONNX export.
const DefaultModelURL = "https://github.com/danielgatis/rembg/releases/download/v0.0.0/u2net.onnx"

// ErrModelVerification indicates the file on disk or the downloaded
// payload does not match the expected digest.
var ErrModelVerification = errors.New("modelstore: model verification failed")

// Store manages a single model file.
type Store struct {
	// Path is where the model lives on disk.
	Path string

	// URL is fetched when the model is missing. Empty disables download.
	URL string

	// SHA256 is the expected hex digest. Empty skips verification.
	SHA256 string

	// Client defaults to http.DefaultClient.
	Client *http.Client
}

// Resolve returns the model path, downloading it first if absent. An
// existing file with a mismatched digest is re-downloaded rather than
// trusted.
func (s *Store) Resolve(ctx context.Context) (string, error) {
	if ok, err := s.verifyExisting(); err != nil {
		return "", err
	} else if ok {
		return s.Path, nil
	}

	if s.URL == "" {
		return "", fmt.Errorf("modelstore: model not found at %s and no download URL configured", s.Path)
	}

	if err := s.download(ctx); err != nil {
		return "", err
	}
	return s.Path, nil
}

// verifyExisting reports whether a valid model is already on disk. A
// digest mismatch is logged and treated as absent so Resolve refetches.
func (s *Store) verifyExisting() (bool, error) {
	info, err := os.Stat(s.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("modelstore: stat %s: %w", s.Path, err)
	}
	if info.IsDir() {
		return false, fmt.Errorf("modelstore: %s is a directory", s.Path)
	}

	if s.SHA256 == "" {
		return true, nil
	}

	sum, err := fileSHA256(s.Path)
	if err != nil {
		return false, err
	}
	if !strings.EqualFold(sum, s.SHA256) {
		logger.Warn("model digest mismatch, refetching", "path", s.Path, "got", sum, "want", s.SHA256)
		return false, nil
	}
	return true, nil
}

func (s *Store) download(ctx context.Context) error {
	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}

	logger.Info("downloading model", "url", s.URL, "path", s.Path)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return fmt.Errorf("modelstore: build request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("modelstore: fetch %s: %w", s.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("modelstore: fetch %s: unexpected status %s", s.URL, resp.Status)
	}

	if err := os.MkdirAll(filepath.Dir(s.Path), 0o755); err != nil {
		return fmt.Errorf("modelstore: create model dir: %w", err)
	}

	// Stream to a temp file next to the target, hashing as we go, and
	// rename only after the digest checks out.
	tmpPath := s.Path + "." + uuid.NewString() + ".tmp"
	tmp, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("modelstore: create temp file: %w", err)
	}

	hasher := sha256.New()
	_, copyErr := io.Copy(io.MultiWriter(tmp, hasher), resp.Body)
	closeErr := tmp.Close()
	if copyErr != nil || closeErr != nil {
		os.Remove(tmpPath)
		if copyErr != nil {
			return fmt.Errorf("modelstore: write model: %w", copyErr)
		}
		return fmt.Errorf("modelstore: close model file: %w", closeErr)
	}

	if s.SHA256 != "" {
		sum := hex.EncodeToString(hasher.Sum(nil))
		if !strings.EqualFold(sum, s.SHA256) {
			os.Remove(tmpPath)
			return fmt.Errorf("%w: got %s, want %s", ErrModelVerification, sum, s.SHA256)
		}
	}

	if err := os.Rename(tmpPath, s.Path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("modelstore: install model: %w", err)
	}

	logger.Info("model ready", "path", s.Path)
	return nil
}

func fileSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("modelstore: open %s: %w", path, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("modelstore: hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
