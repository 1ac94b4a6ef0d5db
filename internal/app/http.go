package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"clausebook/api/internal/util"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const maxBodyBytes = 4 << 20

// authorHeader names the editor making a change. Authentication is handled
// in front of this service.
const authorHeader = "X-Author"

type HTTPServer struct {
	service    *Service
	corsOrigin string
}

func NewHTTPServer(service *Service, corsOrigin string) *HTTPServer {
	return &HTTPServer{service: service, corsOrigin: corsOrigin}
}

func (s *HTTPServer) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(s.withMiddleware)
	r.Use(middleware.Recoverer)

	r.Get("/api/health", s.handleHealth)
	r.Get("/api/ready", s.handleReady)

	r.Get("/api/tokens", s.handleTokens)
	r.Get("/api/icons", s.handleIcons)
	r.Get("/api/icons/{icon}", s.handleIcon)
	r.Get("/api/search", s.handleSearch)
	r.Post("/api/lint", s.handleLint)

	r.Route("/api/templates", func(r chi.Router) {
		r.Get("/", s.handleListTemplates)
		r.Post("/", s.handleCreateTemplate)
		r.Post("/import", s.handleImportTemplate)

		r.Route("/{templateID}", func(r chi.Router) {
			r.Get("/", s.handleGetTemplate)
			r.Patch("/", s.handleRenameTemplate)
			r.Delete("/", s.handleDeleteTemplate)
			r.Put("/tree", s.handleReplaceTree)
			r.Get("/preview", s.handlePreview)
			r.Get("/export", s.handleExport)
			r.Get("/history", s.handleHistory)
			r.Get("/versions/{version}", s.handleVersion)
			r.Get("/compare", s.handleCompare)
			r.Get("/releases", s.handleListReleases)
			r.Post("/releases", s.handleCreateRelease)

			r.Post("/sections", s.handleAddSection)
			r.Post("/sections/import-markdown", s.handleImportMarkdown)
			r.Route("/sections/{sectionID}", func(r chi.Router) {
				r.Patch("/", s.handleUpdateSection)
				r.Delete("/", s.handleRemoveSection)
				r.Post("/move", s.handleMoveSection)
				r.Put("/variant", s.handleSetVariant)
				r.Put("/options", s.handleResizeOptions)
				r.Put("/options/{option}/sub-options", s.handleResizeSubOptions)
				r.Put("/options/{option}/mutex", s.handleSetMutex)
				r.Post("/options/{option}/selection", s.handleValidateSelection)
			})

			r.Get("/edit", s.handleEditState)
			r.Post("/edit", s.handleOpenEdit)
			r.Post("/edit/commands", s.handleEditCommand)
			r.Delete("/edit", s.handleReleaseEdit)
		})
	})
	return r
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		if r.Method == http.MethodOptions {
			writer.WriteHeader(http.StatusNoContent)
		} else {
			next.ServeHTTP(writer, r)
		}

		util.Log.WithFields(logrus.Fields{
			"request_id":  requestID,
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      writer.status,
			"duration_ms": time.Since(started).Milliseconds(),
		}).Info("request")
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

func randomRequestID() string {
	return uuid.NewString()
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, If-Match, X-Author, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,PATCH,DELETE,OPTIONS")
	header.Set("Access-Control-Expose-Headers", "ETag, X-Request-ID")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
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

// fail maps err and writes it. Server errors are logged with the request id.
func fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message, details := mapError(err)
	if status >= http.StatusInternalServerError {
		requestID, _ := r.Context().Value(requestIDKey{}).(string)
		util.Log.WithError(err).WithField("request_id", requestID).WithField("path", r.URL.Path).Error("request failed")
	}
	writeError(w, status, code, message, details)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func readRawBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	defer r.Body.Close()
	return io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
}

func invalidBody(w http.ResponseWriter, err error) {
	writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
}

func author(r *http.Request) string {
	return r.Header.Get(authorHeader)
}

// precondition reads If-Match (a template ETag) and the revision query
// parameter.
func precondition(r *http.Request) (Precondition, error) {
	var pre Precondition
	if match := strings.TrimSpace(r.Header.Get("If-Match")); match != "" && match != "*" {
		pre.Fingerprint = strings.Trim(strings.TrimPrefix(match, "W/"), `"`)
	}
	if raw := r.URL.Query().Get("revision"); raw != "" {
		rev, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || rev < 1 {
			return Precondition{}, validationError("revision must be a positive integer")
		}
		pre.Revision = rev
	}
	return pre, nil
}

func pathInt(r *http.Request, name string) (int, error) {
	n, err := strconv.Atoi(chi.URLParam(r, name))
	if err != nil {
		return 0, validationError(name + " must be an integer")
	}
	return n, nil
}

func queryInt(r *http.Request, name string, fallback int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, validationError(name + " must be a non-negative integer")
	}
	return n, nil
}

func etag(fingerprint string) string {
	return `"` + fingerprint + `"`
}

func writeTemplate(w http.ResponseWriter, status int, detail TemplateDetail) {
	w.Header().Set("ETag", etag(detail.Fingerprint))
	writeJSON(w, status, detail)
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	ready, checks := s.service.Readiness(ctx)
	status := "ready"
	statusCode := http.StatusOK
	if !ready {
		status = "not_ready"
		statusCode = http.StatusServiceUnavailable
	}
	writeJSON(w, statusCode, map[string]any{
		"ok":     ready,
		"status": status,
		"checks": checks,
	})
}
