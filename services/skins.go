package services

import (
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"path/filepath"
	"strings"

	"battleboats/models"
	"battleboats/store"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
)

const maxSkinBytes = 2 * 1024 * 1024

// Uploader stores a file and returns the URL it is served from.
type Uploader interface {
	UploadFile(ctx context.Context, fileHeader *multipart.FileHeader, key string) (string, error)
}

// SkinService manages the image shown for each ship length.
type SkinService struct {
	Users store.UserStore

	maxLength int
	uploader  Uploader
	log       *log.Logger
}

// NewSkinService takes a nil uploader when object storage is not configured.
func NewSkinService(users store.UserStore, maxLength int, uploader Uploader, logger *log.Logger) *SkinService {
	return &SkinService{
		Users:     users,
		maxLength: maxLength,
		uploader:  uploader,
		log:       logger.With("component", "skins"),
	}
}

// Get returns one entry per ship length, falling back to the default image.
func (s *SkinService) Get(ctx context.Context, userID string) (map[int]string, error) {
	u, err := s.user(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make(map[int]string, s.maxLength)
	for l := 1; l <= s.maxLength; l++ {
		out[l] = models.DefaultSkin
		if p := u.Skins[l]; p != "" {
			out[l] = p
		}
	}
	return out, nil
}

func (s *SkinService) Set(ctx context.Context, userID string, length int, path string) (map[int]string, error) {
	if length < 1 || length > s.maxLength {
		return nil, fmt.Errorf("%w: ship length must be between 1 and %d", ErrInvalidSkin, s.maxLength)
	}
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("%w: empty skin path", ErrInvalidSkin)
	}

	u, err := s.user(ctx, userID)
	if err != nil {
		return nil, err
	}
	skins := make(map[int]string, len(u.Skins)+1)
	for k, v := range u.Skins {
		skins[k] = v
	}
	if path == models.DefaultSkin {
		delete(skins, length)
	} else {
		skins[length] = path
	}
	if err := s.Users.UpdateSkins(ctx, userID, skins); err != nil {
		return nil, err
	}
	return s.Get(ctx, userID)
}

// Upload pushes an image to object storage and makes it the skin for length.
func (s *SkinService) Upload(ctx context.Context, userID string, length int, fh *multipart.FileHeader) (map[int]string, error) {
	if s.uploader == nil {
		return nil, ErrUploadsDisabled
	}
	if length < 1 || length > s.maxLength {
		return nil, fmt.Errorf("%w: ship length must be between 1 and %d", ErrInvalidSkin, s.maxLength)
	}
	if !strings.HasPrefix(fh.Header.Get("Content-Type"), "image/") {
		return nil, fmt.Errorf("%w: file must be an image", ErrInvalidSkin)
	}
	if fh.Size > maxSkinBytes {
		return nil, fmt.Errorf("%w: image larger than %d bytes", ErrInvalidSkin, maxSkinBytes)
	}

	key := fmt.Sprintf("skins/%s/%d-%s%s", userID, length, uuid.NewString(), strings.ToLower(filepath.Ext(fh.Filename)))
	url, err := s.uploader.UploadFile(ctx, fh, key)
	if err != nil {
		s.log.Error("skins [Upload]", "err", err, "user_id", userID)
		return nil, err
	}
	return s.Set(ctx, userID, length, url)
}

func (s *SkinService) user(ctx context.Context, userID string) (*models.User, error) {
	u, err := s.Users.UserByID(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	return u, err
}
