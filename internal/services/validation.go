package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
)

// ErrorResponse represents error response structure
type ErrorResponse struct {
	Error     string            `json:"error"`               // Error message
	Code      string            `json:"code,omitempty"`      // Machine-readable error kind
	Retryable bool              `json:"retryable,omitempty"` // Safe to retry the whole request
	Details   map[string]string `json:"details,omitempty"`   // Validation details
}

// ValidationHelper provides shared validation functionality
type ValidationHelper struct {
	validator *validator.Validate
}

// NewValidationHelper creates a new validation helper
func NewValidationHelper() *ValidationHelper {
	return &ValidationHelper{
		validator: validator.New(),
	}
}

// ValidateStruct validates a struct and returns validation errors
func (vh *ValidationHelper) ValidateStruct(s any) error {
	return vh.validator.Struct(s)
}

// SendErrorResponse sends a JSON error response
func SendErrorResponse(w http.ResponseWriter, message string, statusCode int, validationErr error) {
	resp := ErrorResponse{Error: message}
	var fieldErrs validator.ValidationErrors
	if errors.As(validationErr, &fieldErrs) {
		resp.Code = "INVALID_REQUEST"
		resp.Details = make(map[string]string)
		for _, err := range fieldErrs {
			resp.Details[err.Field()] = fmt.Sprintf("Field Validation Failed on '%s' tag", err.Tag())
		}
	}
	writeError(w, statusCode, resp)
}

// errorKinds orders the ledger error kinds with their HTTP status and code.
var errorKinds = []struct {
	err    error
	status int
	code   string
}{
	{ErrInvalidRequest, http.StatusBadRequest, "INVALID_REQUEST"},
	{ErrNotFound, http.StatusNotFound, "NOT_FOUND"},
	{ErrInsufficientFunds, http.StatusUnprocessableEntity, "INSUFFICIENT_FUNDS"},
	{ErrNotEligible, http.StatusForbidden, "NOT_ELIGIBLE"},
	{ErrResourceInactive, http.StatusConflict, "RESOURCE_INACTIVE"},
	{ErrPerActorLimitReached, http.StatusConflict, "PER_USER_LIMIT_REACHED"},
	{ErrGlobalLimitReached, http.StatusConflict, "GLOBAL_LIMIT_REACHED"},
	{ErrLockTimeout, http.StatusServiceUnavailable, "RESOURCE_BUSY"},
}

// ErrorStatus returns the HTTP status and code for err. Anything that is not
// a ledger error kind is an internal failure.
func ErrorStatus(err error) (int, string) {
	for _, k := range errorKinds {
		if errors.Is(err, k.err) {
			return k.status, k.code
		}
	}
	return http.StatusInternalServerError, "INTERNAL"
}

// SendServiceError writes err as a JSON error. Internal failures never leak
// their message.
func SendServiceError(w http.ResponseWriter, err error) {
	status, code := ErrorStatus(err)
	resp := ErrorResponse{Error: err.Error(), Code: code}
	if status == http.StatusInternalServerError {
		resp.Error = "Internal server error"
	}
	if IsRetryable(err) {
		resp.Retryable = true
		w.Header().Set("Retry-After", "1")
	}
	writeError(w, status, resp)
}

func writeError(w http.ResponseWriter, statusCode int, resp ErrorResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(resp)
}
