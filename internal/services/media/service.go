package media

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
)

var (
	ErrValidation     = errors.New("validation error")
	ErrObjectNotFound = errors.New("object not found")
	ErrTooManyImages  = errors.New("too many listing images")
)

const (
	maxListingImages = 12
	maxImageBytes    = 20 << 20
)

type ObjectStorage interface {
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// Service reads listing images from object storage. Content hashes feed the
// duplicate image signal.
type Service struct {
	storage ObjectStorage
}

func NewService(storage ObjectStorage) *Service {
	return &Service{storage: storage}
}

// HashImages returns the hex sha256 of each object, deduplicated, in key order.
func (s *Service) HashImages(ctx context.Context, keys []string) ([]string, error) {
	if s.storage == nil {
		return nil, fmt.Errorf("object storage is nil")
	}
	if len(keys) > maxListingImages {
		return nil, ErrTooManyImages
	}

	seen := make(map[string]struct{}, len(keys))
	out := make([]string, 0, len(keys))
	for _, raw := range keys {
		key := strings.TrimSpace(raw)
		if key == "" {
			return nil, ErrValidation
		}

		sum, err := s.hashObject(ctx, key)
		if err != nil {
			return nil, err
		}
		if _, ok := seen[sum]; ok {
			continue
		}
		seen[sum] = struct{}{}
		out = append(out, sum)
	}
	return out, nil
}

func (s *Service) hashObject(ctx context.Context, key string) (string, error) {
	body, err := s.storage.Open(ctx, key)
	if err != nil {
		return "", fmt.Errorf("open image %q: %w", key, err)
	}
	defer func() { _ = body.Close() }()

	h := sha256.New()
	n, err := io.Copy(h, io.LimitReader(body, maxImageBytes+1))
	if err != nil {
		return "", fmt.Errorf("read image %q: %w", key, err)
	}
	if n > maxImageBytes {
		return "", fmt.Errorf("image %q: %w", key, ErrValidation)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
