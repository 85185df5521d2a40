package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/bahsim/catalog-import-service/internal/objectstore"
	"github.com/bahsim/catalog-import-service/internal/service"
	"github.com/bahsim/catalog-import-service/pkg/logger"
)

type ImportHandler struct {
	service service.ImportService
	logger  *logger.Logger
}

func NewImportHandler(service service.ImportService, log *logger.Logger) *ImportHandler {
	return &ImportHandler{
		service: service,
		logger:  log,
	}
}

// RequestUploadURL handles GET /import?name=<filename>.
func (h *ImportHandler) RequestUploadURL(c echo.Context) error {
	ctx := c.Request().Context()

	fileName := c.QueryParam("name")

	signedURL, err := h.service.SignedUploadURL(ctx, fileName)
	if err != nil {
		if message, ok := fileNameErrorMessage(err); ok {
			return c.JSON(http.StatusBadRequest, map[string]string{
				"message": message,
			})
		}

		h.logger.Error(ctx, "Failed to generate signed URL",
			"file_name", fileName,
			"error", err,
		)
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"message": "Error generating signed URL",
		})
	}

	return c.JSON(http.StatusOK, map[string]string{
		"signedUrl": signedURL,
	})
}

// ReceiveUpload handles PUT /import/upload, the target of issued signed
// URLs.
func (h *ImportHandler) ReceiveUpload(c echo.Context) error {
	ctx := c.Request().Context()

	key := c.QueryParam("key")
	signature := c.QueryParam("signature")
	expires, err := strconv.ParseInt(c.QueryParam("expires"), 10, 64)
	if key == "" || signature == "" || err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"message": "Invalid upload request",
		})
	}

	contentType := c.Request().Header.Get(echo.HeaderContentType)
	if i := strings.Index(contentType, ";"); i >= 0 {
		contentType = strings.TrimSpace(contentType[:i])
	}

	err = h.service.ReceiveUpload(ctx, key, expires, signature, contentType, c.Request().Body)
	if err != nil {
		if errors.Is(err, objectstore.ErrSignatureExpired) || errors.Is(err, objectstore.ErrInvalidSignature) {
			return c.JSON(http.StatusForbidden, map[string]string{
				"message": "Forbidden",
			})
		}

		h.logger.Error(ctx, "Failed to receive upload",
			"key", key,
			"error", err,
		)
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"message": "Failed to store upload",
		})
	}

	return c.JSON(http.StatusOK, map[string]string{
		"message": "Upload complete",
	})
}

func fileNameErrorMessage(err error) (string, bool) {
	switch {
	case errors.Is(err, service.ErrFileNameRequired):
		return "Filename is required", true
	case errors.Is(err, service.ErrFileNameTooLong):
		return "Filename too long", true
	case errors.Is(err, service.ErrFileNameExtension):
		return "Only CSV files are supported", true
	case errors.Is(err, service.ErrFileNameInvalid):
		return "Invalid file name", true
	default:
		return "", false
	}
}
