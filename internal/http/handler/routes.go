package handler

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"contractapi/internal/config"
	"contractapi/internal/http/middleware"
	"contractapi/internal/model"
	"contractapi/internal/service"
)

// uploadResponse is returned after the original file is stored.
type uploadResponse struct {
	ContractID string `json:"contract_id"`
	ShortID    string `json:"short_id"`
	FileURL    string `json:"file_url"`
	ShortURL   string `json:"short_url"`
}

// signResponse is returned after the signed file is stored.
type signResponse struct {
	ContractID    string `json:"contract_id"`
	SignedFileURL string `json:"signed_file_url"`
}

// contractInfo is the status-endpoint view of a contract.
type contractInfo struct {
	ContractID      string     `json:"contract_id"`
	ShortID         string     `json:"short_id"`
	ClientID        string     `json:"client_id"`
	ContractType    string     `json:"contract_type"`
	Status          string     `json:"status"`
	OriginalFileURL string     `json:"original_file_url"`
	SignedFileURL   *string    `json:"signed_file_url,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	SignedAt        *time.Time `json:"signed_at,omitempty"`
	SignerID        *string    `json:"signer_id,omitempty"`
}

func downloadURL(baseURL, id string, kind model.PayloadKind) string {
	return fmt.Sprintf("%s/api/v1/download/%s/%s", baseURL, id, kind)
}

// RegisterRoutes attaches HTTP routes to the provided Fiber app.
//
// The universal short-link route ("/:identifier") must stay last: Fiber
// matches in registration order and every fixed path above it would otherwise
// be shadowed.
func RegisterRoutes(app *fiber.App, db *sql.DB, svc service.ContractService, cfg *config.AppConfig) {
	// Serve OpenAPI spec and Swagger UI
	app.Get("/openapi.yaml", func(c *fiber.Ctx) error {
		c.Type("yaml")
		return c.SendFile("openapi.yaml")
	})
	app.Get("/docs", func(c *fiber.Ctx) error {
		html := `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8" />
  <meta name="viewport" content="width=device-width, initial-scale=1" />
  <title>API Docs</title>
  <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
</head>
<body>
  <div id="swagger-ui"></div>
  <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
  <script>
    window.ui = SwaggerUIBundle({
      url: '/openapi.yaml',
      dom_id: '#swagger-ui',
      presets: [SwaggerUIBundle.presets.apis],
      layout: 'BaseLayout'
    });
  </script>
</body>
</html>`
		return c.Type("html").SendString(html)
	})

	// Health endpoint: checks DB connectivity only
	app.Get("/health", HealthCheck(db))

	// Simple liveness probe
	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	auth := middleware.APIKeyAuth(cfg.Security.APIKey, cfg.Security.AllowedIPs)
	api := app.Group("/api/v1")

	api.Post("/upload", auth, UploadContract(svc, cfg))
	api.Post("/sign/:id", auth, SignContract(svc, cfg))
	api.Get("/status/:id", auth, ContractStatus(svc, cfg))
	api.Get("/download/:id/:kind", DownloadPayload(svc))

	// Root service info. Must be registered before the catch-all below, which
	// never matches a bare "/" anyway.
	app.Get("/", ServiceInfo())

	// Universal short link, public: full UUID or 8-char short ID.
	app.Get("/:identifier", LatestPayload(svc))
}

// ServiceInfo reports minimal service identity for the root path.
func ServiceInfo() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"service": "contract-api",
			"version": "1.0.0",
			"status":  "running",
		})
	}
}

// HealthCheck reports readiness based on database connectivity.
func HealthCheck(db *sql.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			return writeError(c, fiber.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "dependency unavailable")
		}
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "healthy"})
	}
}

// UploadContract handles the protected original-file upload
// (multipart/form-data: client_id, contract_type, file).
func UploadContract(svc service.ContractService, cfg *config.AppConfig) fiber.Handler {
	return func(c *fiber.Ctx) error {
		clientID := c.FormValue("client_id")
		if clientID == "" {
			return writeError(c, fiber.StatusBadRequest, "CLIENT_ID_REQUIRED", "client_id is required")
		}
		contractType := c.FormValue("contract_type")
		if contractType == "" {
			return writeError(c, fiber.StatusBadRequest, "CONTRACT_TYPE_REQUIRED", "contract_type is required")
		}

		fh, ferr := formPDF(c, cfg.MaxFileSize)
		if ferr != nil {
			return writeError(c, fiber.StatusBadRequest, ferr.code, ferr.message)
		}

		f, err := fh.Open()
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "FILE_OPEN_ERROR", "cannot open uploaded file")
		}
		defer f.Close()

		contract, err := svc.Upload(c.UserContext(), clientID, contractType, f, fh.Size)
		if err != nil {
			if errors.Is(err, service.ErrMintingExhausted) {
				return writeError(c, fiber.StatusServiceUnavailable, "SHORT_ID_EXHAUSTED", "could not allocate short id, retry")
			}
			return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		}

		return c.Status(fiber.StatusCreated).JSON(uploadResponse{
			ContractID: contract.ID,
			ShortID:    contract.ShortID,
			FileURL:    downloadURL(cfg.BaseURL, contract.ID, model.PayloadOriginal),
			ShortURL:   fmt.Sprintf("%s/%s", cfg.BaseURL, contract.ShortID),
		})
	}
}

// SignContract handles the protected signed-file upload
// (multipart/form-data: signer_id, file).
func SignContract(svc service.ContractService, cfg *config.AppConfig) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")
		if _, err := uuid.Parse(id); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}
		signerID := c.FormValue("signer_id")
		if signerID == "" {
			return writeError(c, fiber.StatusBadRequest, "SIGNER_ID_REQUIRED", "signer_id is required")
		}

		fh, ferr := formPDF(c, cfg.MaxFileSize)
		if ferr != nil {
			return writeError(c, fiber.StatusBadRequest, ferr.code, ferr.message)
		}

		f, err := fh.Open()
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "FILE_OPEN_ERROR", "cannot open uploaded file")
		}
		defer f.Close()

		contract, err := svc.Sign(c.UserContext(), id, signerID, f, fh.Size)
		if err != nil {
			switch {
			case errors.Is(err, service.ErrNotFound):
				return writeError(c, fiber.StatusNotFound, "NOT_FOUND", "contract not found")
			case errors.Is(err, service.ErrAlreadySigned):
				return writeError(c, fiber.StatusConflict, "ALREADY_SIGNED", "contract already signed")
			}
			return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		}

		return c.JSON(signResponse{
			ContractID:    contract.ID,
			SignedFileURL: downloadURL(cfg.BaseURL, contract.ID, model.PayloadSigned),
		})
	}
}

// ContractStatus returns the contract metadata for the protected status endpoint.
func ContractStatus(svc service.ContractService, cfg *config.AppConfig) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")
		if _, err := uuid.Parse(id); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}

		contract, err := svc.Resolve(c.UserContext(), id)
		if err != nil {
			if errors.Is(err, service.ErrNotFound) {
				return writeError(c, fiber.StatusNotFound, "NOT_FOUND", "contract not found")
			}
			return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		}

		info := contractInfo{
			ContractID:      contract.ID,
			ShortID:         contract.ShortID,
			ClientID:        contract.ClientID,
			ContractType:    contract.ContractType,
			Status:          string(contract.Status),
			OriginalFileURL: downloadURL(cfg.BaseURL, contract.ID, model.PayloadOriginal),
			CreatedAt:       contract.CreatedAt,
			SignedAt:        contract.SignedAt,
			SignerID:        contract.SignerID,
		}
		if contract.Signed() {
			u := downloadURL(cfg.BaseURL, contract.ID, model.PayloadSigned)
			info.SignedFileURL = &u
		}
		return c.JSON(info)
	}
}

// DownloadPayload serves a specific payload kind with no fallback: requesting
// the signed file of an unsigned contract is a 404. Public; possession of the
// UUID is the access token.
func DownloadPayload(svc service.ContractService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")
		if _, err := uuid.Parse(id); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}
		kind := model.PayloadKind(c.Params("kind"))
		if kind != model.PayloadOriginal && kind != model.PayloadSigned {
			return writeError(c, fiber.StatusBadRequest, "INVALID_KIND", "kind must be 'original' or 'signed'")
		}

		contract, err := svc.Resolve(c.UserContext(), id)
		if err != nil {
			if errors.Is(err, service.ErrNotFound) {
				return writeError(c, fiber.StatusNotFound, "NOT_FOUND", "contract not found")
			}
			return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		}

		rc, err := svc.FetchPayload(c.UserContext(), contract, kind)
		if err != nil {
			if errors.Is(err, service.ErrNotFound) {
				return writeError(c, fiber.StatusNotFound, "NOT_FOUND", "file not found")
			}
			return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		}

		c.Set(fiber.HeaderContentType, "application/pdf")
		c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename=contract_%s_%s.pdf`, contract.ID, kind))
		c.Set(fiber.HeaderCacheControl, "no-cache, no-store, must-revalidate")
		return c.SendStream(rc)
	}
}

// LatestPayload serves the universal short link: resolve the identifier (full
// UUID or short ID), then return the signed payload when available, else the
// original. Public by design; unguessable identifiers are the access control.
func LatestPayload(svc service.ContractService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		identifier := c.Params("identifier")

		contract, err := svc.Resolve(c.UserContext(), identifier)
		if err != nil {
			if errors.Is(err, service.ErrNotFound) || errors.Is(err, service.ErrIDRequired) {
				return writeError(c, fiber.StatusNotFound, "NOT_FOUND", "document not found")
			}
			return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		}

		rc, kind, err := svc.FetchLatest(c.UserContext(), contract)
		if err != nil {
			if errors.Is(err, service.ErrNotFound) {
				return writeError(c, fiber.StatusNotFound, "NOT_FOUND", "file content not found")
			}
			return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		}

		c.Set(fiber.HeaderContentType, "application/pdf")
		c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename=contract_%s_%s.pdf`, contract.ShortID, kind))
		c.Set("X-File-Type", string(kind))
		c.Set("X-Contract-Status", string(contract.Status))
		c.Set("X-Short-ID", contract.ShortID)
		c.Set(fiber.HeaderETag, fmt.Sprintf(`"%s-%s"`, contract.ID, kind))
		// Signed documents are immutable and safe to cache briefly.
		if contract.Signed() {
			c.Set(fiber.HeaderCacheControl, "public, max-age=300")
		} else {
			c.Set(fiber.HeaderCacheControl, "no-cache")
		}
		return c.SendStream(rc)
	}
}
