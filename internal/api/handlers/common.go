package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/global-credit/credit_core/internal/domain/entities"
	domainerrors "github.com/global-credit/credit_core/internal/domain/errors"
)

// respondError sends a standardized error response
func respondError(c *gin.Context, status int, code, message string, details map[string]interface{}) {
	c.JSON(status, entities.ErrorResponse{
		Code:    code,
		Message: message,
		Details: details,
	})
}

// respondBadRequest sends a bad request error
func respondBadRequest(c *gin.Context, message string, details map[string]interface{}) {
	respondError(c, http.StatusBadRequest, "INVALID_REQUEST", message, details)
}

// respondUnauthorized sends an unauthorized error
func respondUnauthorized(c *gin.Context, message string) {
	respondError(c, http.StatusUnauthorized, "UNAUTHORIZED", message, nil)
}

// respondNotFound sends a not found error
func respondNotFound(c *gin.Context, message string) {
	respondError(c, http.StatusNotFound, "NOT_FOUND", message, nil)
}

// respondConflict sends a conflict error
func respondConflict(c *gin.Context, message string, details map[string]interface{}) {
	respondError(c, http.StatusConflict, "CONFLICT", message, details)
}

// respondInternalError sends an internal server error
func respondInternalError(c *gin.Context, message string) {
	respondError(c, http.StatusInternalServerError, "INTERNAL_ERROR", message, nil)
}

// respondDomainError maps a domain error onto its HTTP shape
func respondDomainError(c *gin.Context, err error) {
	var pe *domainerrors.ProcessingError
	var details map[string]interface{}
	if errors.As(err, &pe) {
		details = pe.Details
	}

	switch {
	case domainerrors.IsActiveDuplicate(err):
		respondConflict(c, "an active application already exists for this document", details)
	case domainerrors.IsNotFound(err):
		respondNotFound(c, err.Error())
	case domainerrors.IsStateTransition(err):
		respondError(c, http.StatusUnprocessableEntity, "INVALID_TRANSITION", err.Error(), details)
	case domainerrors.IsValidation(err):
		respondBadRequest(c, err.Error(), details)
	default:
		respondInternalError(c, "internal error")
	}
}

// parseUUIDParam extracts a UUID path parameter
func parseUUIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		respondBadRequest(c, name+" must be a valid UUID", nil)
		return uuid.Nil, false
	}
	return id, true
}
