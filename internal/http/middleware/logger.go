package middleware

import (
	"encoding/json"
	"io"
	"os"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Logger is a middleware that logs each HTTP request as one JSON object per
// line to stdout. Fields: ts, request_id (set by the RequestID middleware),
// method, path, status, latency (milliseconds).
func Logger() fiber.Handler {
	return LoggerWithWriter(os.Stdout, time.UTC)
}

// LoggerWithWriter is Logger with an injectable destination and timezone,
// mainly for tests.
func LoggerWithWriter(w io.Writer, loc *time.Location) fiber.Handler {
	enc := json.NewEncoder(w)

	return func(c *fiber.Ctx) error {
		start := time.Now()

		// Process request
		err := c.Next()

		// Collect fields after handler executed to capture final status
		rid, _ := c.Locals(RequestIDLocalKey).(string)
		method := c.Method()
		// Use only the path segment (no query string)
		path := c.Path()
		status := c.Response().StatusCode()
		latency := float64(time.Since(start).Milliseconds())

		_ = enc.Encode(map[string]any{
			"ts":         time.Now().In(loc).Format(time.RFC3339Nano),
			"request_id": rid,
			"method":     method,
			"path":       path,
			"status":     status,
			"latency":    latency,
		})

		return err
	}
}
