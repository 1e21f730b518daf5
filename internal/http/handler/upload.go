package handler

import (
	"mime/multipart"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// formError is a validation failure of a multipart upload field, carrying the
// machine-readable code used in the error envelope.
type formError struct {
	code    string
	message string
}

func (e *formError) Error() string { return e.message }

// formPDF extracts and validates the "file" multipart field: it must be
// present, carry a .pdf filename (case-insensitive), and not exceed maxSize
// bytes.
func formPDF(c *fiber.Ctx, maxSize int64) (*multipart.FileHeader, *formError) {
	fh, err := c.FormFile("file")
	if err != nil {
		return nil, &formError{code: "FILE_REQUIRED", message: "file is required"}
	}
	if !strings.HasSuffix(strings.ToLower(fh.Filename), ".pdf") {
		return nil, &formError{code: "INVALID_FILE_TYPE", message: "only pdf files allowed"}
	}
	if maxSize > 0 && fh.Size > maxSize {
		return nil, &formError{code: "FILE_TOO_LARGE", message: "file exceeds the maximum allowed size"}
	}
	return fh, nil
}
