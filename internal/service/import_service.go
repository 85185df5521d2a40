package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/bahsim/catalog-import-service/internal/domain"
	"github.com/bahsim/catalog-import-service/internal/objectstore"
	"github.com/bahsim/catalog-import-service/pkg/logger"
)

const (
	maxFileNameLength = 255
	csvContentType    = "text/csv"
)

// Filename validation failures, one per rule. Checks run in a fixed
// precedence order: required, length, extension, pattern/traversal.
var (
	ErrFileNameRequired  = errors.New("filename is required")
	ErrFileNameTooLong   = errors.New("filename too long")
	ErrFileNameExtension = errors.New("only csv files are supported")
	ErrFileNameInvalid   = errors.New("invalid file name")
)

// Letters (any script), digits, underscore and hyphen before the .csv
// extension.
var validFileName = regexp.MustCompile(`(?i)^[\p{L}\p{N}_-]+\.csv$`)

type ImportService interface {
	SignedUploadURL(ctx context.Context, fileName string) (string, error)
	ReceiveUpload(ctx context.Context, key string, expires int64, signature, contentType string, body io.Reader) error
}

type importService struct {
	store        objectstore.Store
	signer       *objectstore.Signer
	bucket       string
	uploadFolder string
	urlExpiry    time.Duration
	logger       *logger.Logger
}

func NewImportService(
	store objectstore.Store,
	signer *objectstore.Signer,
	bucket, uploadFolder string,
	urlExpiry time.Duration,
	log *logger.Logger,
) ImportService {
	return &importService{
		store:        store,
		signer:       signer,
		bucket:       bucket,
		uploadFolder: uploadFolder,
		urlExpiry:    urlExpiry,
		logger:       log,
	}
}

// SignedUploadURL validates the requested filename and issues a
// time-limited write-only URL scoped to the derived storage key. Nothing
// is written yet.
func (s *importService) SignedUploadURL(ctx context.Context, fileName string) (string, error) {
	if err := validateFileName(fileName); err != nil {
		s.logger.Info(ctx, "Rejected upload filename",
			"file_name", fileName,
			"reason", err.Error(),
		)
		return "", err
	}

	if s.bucket == "" || s.uploadFolder == "" {
		return "", fmt.Errorf("%w: bucket or upload folder", domain.ErrMissingConfig)
	}

	key := s.uploadFolder + "/" + strings.ToLower(strings.TrimSpace(fileName))
	url := s.signer.SignedUploadURL(s.bucket, key, csvContentType, s.urlExpiry)

	s.logger.Info(ctx, "Issued signed upload URL",
		"key", key,
		"expires_in", s.urlExpiry.String(),
	)

	return url, nil
}

// ReceiveUpload verifies a signed upload and writes the object, which in
// turn fires the object-created trigger.
func (s *importService) ReceiveUpload(ctx context.Context, key string, expires int64, signature, contentType string, body io.Reader) error {
	if contentType != csvContentType {
		return objectstore.ErrInvalidSignature
	}

	if err := s.signer.Verify(s.bucket, key, csvContentType, expires, signature); err != nil {
		s.logger.Warn(ctx, "Rejected upload",
			"key", key,
			"error", err,
		)
		return err
	}

	size, err := s.store.Put(ctx, s.bucket, key, body)
	if err != nil {
		s.logger.Error(ctx, "Failed to store upload",
			"key", key,
			"error", err,
		)
		return err
	}

	s.logger.Info(ctx, "Upload received",
		"key", key,
		"size_bytes", size,
	)

	return nil
}

func validateFileName(fileName string) error {
	name := strings.TrimSpace(fileName)

	if name == "" {
		return ErrFileNameRequired
	}
	// The limit counts characters, not bytes, so multi-byte names are
	// not penalized.
	if utf8.RuneCountInString(name) > maxFileNameLength {
		return ErrFileNameTooLong
	}
	if !strings.HasSuffix(strings.ToLower(name), ".csv") {
		return ErrFileNameExtension
	}
	if !validFileName.MatchString(name) {
		return ErrFileNameInvalid
	}
	// The pattern already excludes separators; keep the traversal check
	// anyway.
	if strings.Contains(name, "../") || strings.Contains(name, `..\`) {
		return ErrFileNameInvalid
	}

	return nil
}
