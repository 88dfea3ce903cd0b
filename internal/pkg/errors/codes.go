package errors

import (
	"fmt"
	"net/http"
)

// Code represents an error code with HTTP status and message
type Code struct {
	Code    int    // Business error code
	Status  int    // HTTP status code
	Message string // Error message
}

// Error codes for different modules
const (
	// Success
	Success = 0

	// Common errors (1000-1999)
	ErrInternalServer = 1000
	ErrInvalidParams  = 1001
	ErrNotFound       = 1002
	ErrConflict       = 1005

	// Reassembly errors (6000-6099)
	ErrReassemblyInvalidState = 6000

	// Export errors (6100-6199)
	ErrExportQueryFailed       = 6100
	ErrExportSourceUnavailable = 6101
	ErrExportInvalidSpec       = 6103
	ErrExportDecodeFailed      = 6104

	// Widget errors (6200-6299)
	ErrWidgetSeedFailed    = 6200
	ErrWidgetInvalidCount  = 6201
	ErrWidgetStorageFailed = 6202
)

// codeMap maps error codes to their details
var codeMap = map[int]Code{
	Success: {Success, http.StatusOK, "Success"},

	// Common errors
	ErrInternalServer: {ErrInternalServer, http.StatusInternalServerError, "Internal server error"},
	ErrInvalidParams:  {ErrInvalidParams, http.StatusBadRequest, "Invalid parameters"},
	ErrNotFound:       {ErrNotFound, http.StatusNotFound, "Resource not found"},
	ErrConflict:       {ErrConflict, http.StatusConflict, "Resource conflict"},

	// Reassembly errors
	ErrReassemblyInvalidState: {ErrReassemblyInvalidState, http.StatusConflict, "Reassembler already finished"},

	// Export errors
	ErrExportQueryFailed:       {ErrExportQueryFailed, http.StatusInternalServerError, "Chunked query failed"},
	ErrExportSourceUnavailable: {ErrExportSourceUnavailable, http.StatusServiceUnavailable, "Row source unavailable"},
	ErrExportInvalidSpec:       {ErrExportInvalidSpec, http.StatusBadRequest, "Invalid chunked query definition"},
	ErrExportDecodeFailed:      {ErrExportDecodeFailed, http.StatusUnprocessableEntity, "Exported document could not be decoded"},

	// Widget errors
	ErrWidgetSeedFailed:    {ErrWidgetSeedFailed, http.StatusInternalServerError, "Failed to seed widgets"},
	ErrWidgetInvalidCount:  {ErrWidgetInvalidCount, http.StatusBadRequest, "Invalid widget count"},
	ErrWidgetStorageFailed: {ErrWidgetStorageFailed, http.StatusInternalServerError, "Widget storage operation failed"},
}

// GetCode returns the Code for a given error code
func GetCode(code int) Code {
	if c, ok := codeMap[code]; ok {
		return c
	}
	return codeMap[ErrInternalServer]
}

// GetHTTPStatus returns HTTP status for a given error code
func GetHTTPStatus(code int) int {
	return GetCode(code).Status
}

// GetMessage returns the message for a given error code
func GetMessage(code int) string {
	return GetCode(code).Message
}

// IsClientError checks if the code represents a client error (4xx)
func IsClientError(code int) bool {
	status := GetHTTPStatus(code)
	return status >= 400 && status < 500
}

// IsServerError checks if the code represents a server error (5xx)
func IsServerError(code int) bool {
	status := GetHTTPStatus(code)
	return status >= 500
}

// FormatError formats an error message with code
func FormatError(code int, details ...string) string {
	msg := GetMessage(code)
	if len(details) > 0 && details[0] != "" {
		return fmt.Sprintf("%s: %s", msg, details[0])
	}
	return msg
}
