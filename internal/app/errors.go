package app

import (
	"errors"
	"fmt"
	"net/http"

	"clausebook/api/internal/contract"
	"clausebook/api/internal/document"
	"clausebook/api/internal/editor"
	"clausebook/api/internal/export"
	"clausebook/api/internal/gitrepo"
	"clausebook/api/internal/icons"
	"clausebook/api/internal/session"
	"clausebook/api/internal/store"
)

type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

func validationError(message string) *DomainError {
	return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", message, nil)
}

var sentinelErrors = []struct {
	err    error
	status int
	code   string
}{
	{store.ErrNotFound, http.StatusNotFound, "NOT_FOUND"},
	{contract.ErrNodeNotFound, http.StatusNotFound, "NODE_NOT_FOUND"},
	{store.ErrRevisionConflict, http.StatusConflict, "REVISION_CONFLICT"},
	{session.ErrLeaseHeld, http.StatusConflict, "LEASE_HELD"},
	{session.ErrLeaseNotFound, http.StatusConflict, "LEASE_REQUIRED"},
	{editor.ErrInvalidTransition, http.StatusConflict, "INVALID_TRANSITION"},
	{editor.ErrNoOpenNode, http.StatusConflict, "NO_OPEN_NODE"},
	{gitrepo.ErrReleaseExists, http.StatusConflict, "RELEASE_EXISTS"},
	{document.ErrUnknownToken, http.StatusUnprocessableEntity, "UNKNOWN_TOKEN"},
	{document.ErrMalformedDocument, http.StatusUnprocessableEntity, "MALFORMED_DOCUMENT"},
	{contract.ErrInvalidResize, http.StatusUnprocessableEntity, "INVALID_RESIZE"},
	{contract.ErrMutexViolation, http.StatusUnprocessableEntity, "MUTEX_VIOLATION"},
	{contract.ErrInvalidTree, http.StatusUnprocessableEntity, "INVALID_TREE"},
	{contract.ErrStaleHTML, http.StatusUnprocessableEntity, "STALE_HTML"},
	{icons.ErrIconNotFound, http.StatusUnprocessableEntity, "UNKNOWN_ICON"},
	{export.ErrUnsupportedFormat, http.StatusUnprocessableEntity, "UNSUPPORTED_FORMAT"},
	{export.ErrPDFDependencyMissing, http.StatusServiceUnavailable, "PDF_UNAVAILABLE"},
}

// mapError turns service errors into an HTTP status and error code. Domain
// sentinels keep their wrapped message so clients see which node failed.
func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	for _, s := range sentinelErrors {
		if errors.Is(err, s.err) {
			return s.status, s.code, err.Error(), nil
		}
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
