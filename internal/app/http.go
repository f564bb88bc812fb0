package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"partquote/api/internal/auth"
	"partquote/api/internal/convert"
	"partquote/api/internal/previewtoken"
	"partquote/api/internal/storage"
)

type HTTPServer struct {
	service       *Service
	corsOrigin    string
	sessionSecret string
	logger        *zap.Logger
}

func NewHTTPServer(service *Service, logger *zap.Logger) *HTTPServer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPServer{
		service:       service,
		corsOrigin:    service.cfg.CORSOrigin,
		sessionSecret: service.cfg.SessionJWTSecret,
		logger:        logger,
	}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		status := "ready"
		statusCode := http.StatusOK
		checks := map[string]any{
			"database": map[string]any{"status": "ok"},
		}
		if err := s.service.Ping(ctx); err != nil {
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
			checks["database"] = map[string]any{
				"status": "error",
				"error":  err.Error(),
			}
		}
		writeJSON(w, statusCode, map[string]any{
			"ok":     status == "ready",
			"status": status,
			"checks": checks,
		})
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/preview" {
		s.handlePreview(w, r)
		return
	}

	session, ok := s.requireSession(w, r)
	if !ok {
		return
	}

	parts := splitPath(r.URL.Path)

	if len(parts) == 4 && parts[0] == "api" && parts[1] == "quotes" && parts[3] == "files" {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
			return
		}
		quoteID := parts[2]
		entries, err := s.service.ListQuoteFiles(r.Context(), session.UserID, quoteID)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"files": entries})
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/admin/storage/reconcile" {
		if session.Role != auth.RoleAdmin {
			writeError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
			return
		}
		quoteID := strings.TrimSpace(r.URL.Query().Get("quoteId"))
		if quoteID == "" {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "quoteId is required", nil)
			return
		}
		report, err := s.service.Reconcile(r.Context(), quoteID)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, report)
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

// handlePreview serves the preview proxy. Token requests carry their own
// authorization; the bucket/path convention requires an admin session.
func (s *HTTPServer) handlePreview(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	req := PreviewRequest{
		Token:       strings.TrimSpace(query.Get("token")),
		Bucket:      strings.TrimSpace(query.Get("bucket")),
		Path:        strings.TrimSpace(query.Get("path")),
		Kind:        strings.TrimSpace(query.Get("kind")),
		Disposition: strings.TrimSpace(query.Get("disposition")),
	}

	if req.Token == "" {
		session, ok := s.requireSession(w, r)
		if !ok {
			return
		}
		if session.Role != auth.RoleAdmin {
			writeError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
			return
		}
		req.Privileged = true
	}

	result, err := s.service.Preview(r.Context(), req)
	if err != nil {
		if errors.Is(err, convert.ErrUnavailable) {
			// The viewer keys off this exact body shape.
			writeJSON(w, http.StatusBadGateway, map[string]any{
				"ok":    false,
				"error": "step_preview_unavailable",
			})
			return
		}
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}

	header := w.Header()
	header.Set("Content-Type", result.ContentType)
	header.Set("Content-Length", strconv.Itoa(len(result.Content)))
	header.Set("Content-Disposition", fmt.Sprintf("%s; filename=%q", result.Disposition, result.Filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.Content)
}

func (s *HTTPServer) requireSession(w http.ResponseWriter, r *http.Request) (auth.SessionClaims, bool) {
	token := auth.SessionFromRequest(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
		return auth.SessionClaims{}, false
	}
	session, err := auth.VerifySession(s.sessionSecret, token)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
		return auth.SessionClaims{}, false
	}
	return session, true
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		s.logger.Info("request",
			zap.String("request_id", requestID),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", writer.status),
			zap.Int64("duration_ms", time.Since(started).Milliseconds()),
		)
	})
}

type requestIDKey struct{}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,OPTIONS")
	header.Set("Cache-Control", "no-store")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	if errors.Is(err, previewtoken.ErrExpiredToken) {
		return http.StatusUnauthorized, "TOKEN_EXPIRED", "Preview token expired", nil
	}
	if errors.Is(err, previewtoken.ErrInvalidToken) || errors.Is(err, previewtoken.ErrMalformedToken) {
		return http.StatusUnauthorized, "TOKEN_INVALID", "Preview token invalid", nil
	}
	if errors.Is(err, auth.ErrInvalidSession) {
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	}
	if errors.Is(err, storage.ErrNotFound) || errors.Is(err, sql.ErrNoRows) {
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
