package middleware

import (
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// UserIDHeader and UserNameHeader carry the acting pharmacist/user identity.
// Authentication happens upstream; this service only records who acted.
const (
	UserIDHeader   = "X-User-ID"
	UserNameHeader = "X-User-Name"
)

// AuditEntry captures who touched which pharmacy resource, when, and how.
type AuditEntry struct {
	UserID     string
	UserName   string
	Resource   string
	Action     string // read, create, update, delete
	Path       string
	Method     string
	RequestID  string
	StatusCode int
	Timestamp  time.Time
}

// AuditRecorder persists audit entries. Decoupled from the middleware so
// tests can supply a mock.
type AuditRecorder interface {
	RecordAccess(entry AuditEntry) error
}

// AuditRecorderFunc is a function adapter for AuditRecorder.
type AuditRecorderFunc func(entry AuditEntry) error

func (f AuditRecorderFunc) RecordAccess(entry AuditEntry) error {
	return f(entry)
}

// Audit records every /api/v1 access against the stock ledger and dispensing
// workflow. Stock movements already have their own transaction log; this
// covers reads and non-ledger writes. Without a recorder, entries go to the
// structured log.
func Audit(logger zerolog.Logger, recorders ...AuditRecorder) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			path := req.URL.Path
			if !strings.HasPrefix(path, "/api/v1/") {
				return next(c)
			}

			err := next(c)

			entry := AuditEntry{
				UserID:     req.Header.Get(UserIDHeader),
				UserName:   req.Header.Get(UserNameHeader),
				Resource:   resourceFromPath(path),
				Action:     actionFromMethod(req.Method),
				Path:       path,
				Method:     req.Method,
				StatusCode: c.Response().Status,
				Timestamp:  time.Now(),
			}
			if rid, ok := c.Get("request_id").(string); ok {
				entry.RequestID = rid
			}

			if len(recorders) > 0 {
				for _, r := range recorders {
					if rerr := r.RecordAccess(entry); rerr != nil {
						logger.Error().Err(rerr).Msg("audit record failed")
					}
				}
			} else {
				logger.Info().
					Str("user_id", entry.UserID).
					Str("resource", entry.Resource).
					Str("action", entry.Action).
					Str("path", entry.Path).
					Int("status", entry.StatusCode).
					Msg("audit")
			}

			return err
		}
	}
}

func resourceFromPath(path string) string {
	rest := strings.TrimPrefix(path, "/api/v1/")
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		return rest[:i]
	}
	return rest
}

func actionFromMethod(method string) string {
	switch method {
	case "GET":
		return "read"
	case "POST":
		return "create"
	case "PUT", "PATCH":
		return "update"
	case "DELETE":
		return "delete"
	default:
		return strings.ToLower(method)
	}
}
