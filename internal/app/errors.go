package app

import (
	"fmt"
	"net/http"
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
	return domainError(http.StatusBadRequest, "VALIDATION_ERROR", message, nil)
}

func forbiddenError(message string) *DomainError {
	return domainError(http.StatusForbidden, "FORBIDDEN", message, nil)
}

func notFoundError(message string) *DomainError {
	return domainError(http.StatusNotFound, "NOT_FOUND", message, nil)
}

func unauthorizedError(message string) *DomainError {
	return domainError(http.StatusUnauthorized, "UNAUTHORIZED", message, nil)
}

func infraError(message string, err error) *DomainError {
	var details any
	if err != nil {
		details = err.Error()
	}
	return domainError(http.StatusInternalServerError, "SERVER_ERROR", message, details)
}

func upstreamError(message string, err error) *DomainError {
	var details any
	if err != nil {
		details = err.Error()
	}
	return domainError(http.StatusBadGateway, "UPSTREAM_ERROR", message, details)
}

// partialSuccessError reports a write that landed while a follow-up flag
// update did not. Details carries what was written.
func partialSuccessError(message string, written any) *DomainError {
	return domainError(http.StatusMultiStatus, "PARTIAL_SUCCESS", message, written)
}

func unavailableError(code, message string) *DomainError {
	return domainError(http.StatusServiceUnavailable, code, message, nil)
}
