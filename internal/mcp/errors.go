package mcp

import (
	"errors"
	"fmt"

	"github.com/mindlogger/applet-engine/internal/domain/applet"
	"github.com/mindlogger/applet-engine/internal/domain/version"
)

// APIError represents an MCP error response.
type APIError struct {
	Code         string `json:"code"`
	Message      string `json:"message"`
	Details      any    `json:"details,omitempty"`
	RecoveryHint string `json:"recovery_hint,omitempty"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// MapError maps domain errors to MCP error codes. The specific
// validation sentinels are checked before the ErrValidation umbrella so
// the message stays actionable.
func MapError(err error) *APIError {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, applet.ErrAppletNotFound):
		return &APIError{Code: "APPLET_NOT_FOUND", Message: "applet not found", RecoveryHint: "Check the applet id; it may have been deleted"}
	case errors.Is(err, applet.ErrVersionNotFound):
		return &APIError{Code: "VERSION_NOT_FOUND", Message: "applet version not found", RecoveryHint: "Call list_applet_versions for the versions that exist"}
	case errors.Is(err, version.ErrMalformedIdVersion):
		return &APIError{Code: "MALFORMED_ID_VERSION", Message: "malformed id_version", Details: err.Error(), RecoveryHint: "Use the {uuid}_{version} form, e.g. ..._1.0.0"}
	case errors.Is(err, applet.ErrStaleApplet):
		return &APIError{Code: "STALE_APPLET", Message: "applet modified concurrently", Details: err.Error(), RecoveryHint: "Reload with get_applet and resubmit against the current version"}
	case errors.Is(err, applet.ErrEncryptionImmutable):
		return &APIError{Code: "VALIDATION", Message: "encryption cannot change after create", RecoveryHint: "Omit the encryption bundle to keep the current one"}
	case errors.Is(err, applet.ErrValidation):
		return &APIError{Code: "VALIDATION", Message: "invalid applet payload", Details: err.Error()}
	case errors.Is(err, applet.ErrConflict):
		return &APIError{Code: "CONFLICT", Message: "applet commit conflict", Details: err.Error(), RecoveryHint: "Retry the request"}
	default:
		return nil
	}
}
