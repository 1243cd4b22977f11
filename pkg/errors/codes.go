package errors

import (
	"net/http"
	"strings"
)

// ErrorCode is a string representation of a specific error condition.
type ErrorCode string

func (c ErrorCode) String() string {
	return string(c)
}

// Common error codes.
const (
	ErrCodeInternal           ErrorCode = "COMMON_001"
	ErrCodeBadRequest         ErrorCode = "COMMON_002"
	ErrCodeNotFound           ErrorCode = "COMMON_005"
	ErrCodeConflict           ErrorCode = "COMMON_006"
	ErrCodeServiceUnavailable ErrorCode = "COMMON_008"
	ErrCodeTimeout            ErrorCode = "COMMON_009"
	ErrCodeValidation         ErrorCode = "COMMON_010"
	ErrCodeSerialization      ErrorCode = "COMMON_011"
	ErrCodeDatabaseError      ErrorCode = "COMMON_012"
	ErrCodeCacheError         ErrorCode = "COMMON_013"
	ErrCodeExternalService    ErrorCode = "COMMON_014"
	ErrCodeStorageError       ErrorCode = "COMMON_017"
)

// Registry module error codes.
const (
	ErrCodeMissingColumns     ErrorCode = "REG_001"
	ErrCodeCategoryNotFound   ErrorCode = "REG_002"
	ErrCodeSnapshotNotFound   ErrorCode = "REG_003"
	ErrCodeSlugExhausted      ErrorCode = "REG_004"
	ErrCodeLockHeld           ErrorCode = "REG_005"
	ErrCodeSnapshotUnreadable ErrorCode = "REG_006"
	ErrCodeRowInvalid         ErrorCode = "REG_007"
)

// Short aliases used at call sites.
const (
	CodeUnknown            = ErrorCode("UNKNOWN")
	CodeOK                 = ErrorCode("OK")
	CodeInternal           = ErrCodeInternal
	CodeInvalidParam       = ErrCodeBadRequest
	CodeNotFound           = ErrCodeNotFound
	CodeConflict           = ErrCodeConflict
	CodeDBQueryError       = ErrCodeDatabaseError
	CodeDBConnectionError  = ErrCodeServiceUnavailable
	CodeCacheError         = ErrCodeCacheError
	CodeMessagingError     = ErrCodeExternalService
	CodeStorageError       = ErrCodeStorageError
	CodeMissingColumns     = ErrCodeMissingColumns
	CodeCategoryNotFound   = ErrCodeCategoryNotFound
	CodeSnapshotNotFound   = ErrCodeSnapshotNotFound
	CodeSlugExhausted      = ErrCodeSlugExhausted
	CodeLockHeld           = ErrCodeLockHeld
	CodeSnapshotUnreadable = ErrCodeSnapshotUnreadable
	CodeRowInvalid         = ErrCodeRowInvalid
)

// ErrorCodeHTTPStatus maps codes to the status returned by the admin server.
var ErrorCodeHTTPStatus = map[ErrorCode]int{
	ErrCodeInternal:           http.StatusInternalServerError,
	ErrCodeBadRequest:         http.StatusBadRequest,
	ErrCodeNotFound:           http.StatusNotFound,
	ErrCodeConflict:           http.StatusConflict,
	ErrCodeServiceUnavailable: http.StatusServiceUnavailable,
	ErrCodeTimeout:            http.StatusGatewayTimeout,
	ErrCodeValidation:         http.StatusBadRequest,
	ErrCodeSerialization:      http.StatusInternalServerError,
	ErrCodeDatabaseError:      http.StatusInternalServerError,
	ErrCodeCacheError:         http.StatusInternalServerError,
	ErrCodeExternalService:    http.StatusBadGateway,
	ErrCodeStorageError:       http.StatusBadGateway,

	ErrCodeMissingColumns:     http.StatusUnprocessableEntity,
	ErrCodeCategoryNotFound:   http.StatusNotFound,
	ErrCodeSnapshotNotFound:   http.StatusNotFound,
	ErrCodeSlugExhausted:      http.StatusConflict,
	ErrCodeLockHeld:           http.StatusConflict,
	ErrCodeSnapshotUnreadable: http.StatusUnprocessableEntity,
	ErrCodeRowInvalid:         http.StatusUnprocessableEntity,
}

// ErrorCodeMessage holds the default message per code.
var ErrorCodeMessage = map[ErrorCode]string{
	ErrCodeInternal:           "internal server error",
	ErrCodeBadRequest:         "bad request",
	ErrCodeNotFound:           "resource not found",
	ErrCodeConflict:           "resource conflict",
	ErrCodeServiceUnavailable: "service unavailable",
	ErrCodeTimeout:            "request timeout",
	ErrCodeValidation:         "validation failed",
	ErrCodeSerialization:      "serialization error",
	ErrCodeDatabaseError:      "database error",
	ErrCodeCacheError:         "cache error",
	ErrCodeExternalService:    "external service error",
	ErrCodeStorageError:       "object storage error",

	ErrCodeMissingColumns:     "snapshot is missing required columns",
	ErrCodeCategoryNotFound:   "ip category not found",
	ErrCodeSnapshotNotFound:   "catalogue snapshot not found",
	ErrCodeSlugExhausted:      "slug retries exhausted",
	ErrCodeLockHeld:           "ingest lock is held by another run",
	ErrCodeSnapshotUnreadable: "snapshot could not be decoded",
	ErrCodeRowInvalid:         "invalid snapshot row",
}

// HTTPStatusForCode returns the HTTP status code for an ErrorCode.
func HTTPStatusForCode(code ErrorCode) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// DefaultMessageForCode returns the default message for an ErrorCode.
func DefaultMessageForCode(code ErrorCode) string {
	if msg, ok := ErrorCodeMessage[code]; ok {
		return msg
	}
	return "unknown error"
}

// ModuleForCode returns the module prefix of an ErrorCode.
func ModuleForCode(code ErrorCode) string {
	parts := strings.Split(string(code), "_")
	if len(parts) > 1 && parts[0] != "" {
		return parts[0]
	}
	return "UNKNOWN"
}
