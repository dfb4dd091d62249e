package server

import (
	"errors"
	"strings"
	"unicode"

	"gallery/internal/generation"
	"gallery/internal/interaction"
	"gallery/internal/middleware"
	"gallery/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// errResponseWritten is a sentinel indicating the HTTP response was already
// committed by a helper.  Handlers must return nil (not this error) to avoid
// Fiber's ErrorHandler overwriting the response.
var errResponseWritten = errors.New("response already written")

// parseID extracts a route parameter by name as a UUID string.
// On failure it writes a 400 JSON response and returns errResponseWritten.
// Callers should check: if err != nil { return nil }
func parseID(c *fiber.Ctx, param string) (string, error) {
	raw := strings.TrimSpace(c.Params(param))
	if _, err := uuid.Parse(raw); err != nil {
		_ = models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid "+humanizeParam(param)))
		return "", errResponseWritten
	}
	return raw, nil
}

// humanizeParam converts a route param name into a human-readable label.
// Examples: "id" -> "ID", "imageId" -> "image ID", "commentId" -> "comment ID".
func humanizeParam(param string) string {
	if param == "id" {
		return "ID"
	}
	if strings.HasSuffix(param, "Id") {
		words := splitCamel(param[:len(param)-2])
		return strings.ToLower(strings.Join(words, " ")) + " ID"
	}
	return param
}

// splitCamel splits a camelCase string into words.
func splitCamel(s string) []string {
	var words []string
	start := 0
	for i, r := range s {
		if i > 0 && unicode.IsUpper(r) {
			words = append(words, s[start:i])
			start = i
		}
	}
	words = append(words, s[start:])
	return words
}

// statusFor maps a service or backend error to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, interaction.ErrEmptyContent):
		return fiber.StatusBadRequest
	case models.IsCode(err, models.CodeValidation):
		return fiber.StatusBadRequest
	case models.IsCode(err, models.CodeUnauthorized):
		return fiber.StatusUnauthorized
	case errors.Is(err, models.ErrForbidden):
		return fiber.StatusForbidden
	case errors.Is(err, gorm.ErrRecordNotFound), models.IsCode(err, models.CodeNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, models.ErrConflict):
		return fiber.StatusConflict
	}

	switch generation.KindOf(err) {
	case "":
	case generation.KindUnsupportedModel:
		return fiber.StatusNotFound
	case generation.KindInvalidRequest:
		return fiber.StatusBadRequest
	default:
		return fiber.StatusBadGateway
	}
	return fiber.StatusInternalServerError
}

// respondError writes err with the status statusFor picks. Unexpected errors
// are logged and answered with a generic body.
func respondError(c *fiber.Ctx, err error) error {
	status := statusFor(err)

	var appErr *models.AppError
	var genErr *generation.Error
	switch {
	case errors.As(err, &appErr):
		return models.RespondWithError(c, status, appErr)
	case errors.As(err, &genErr):
		return models.RespondWithError(c, status, &models.AppError{
			Code: string(genErr.Kind), Message: genErr.Error(), Retryable: generation.IsRetryable(err),
		})
	}

	switch status {
	case fiber.StatusBadRequest:
		return models.RespondWithError(c, status, models.NewValidationError(errorMessage(err)))
	case fiber.StatusForbidden:
		return models.RespondWithError(c, status, models.NewForbiddenError("Not allowed"))
	case fiber.StatusNotFound:
		return models.RespondWithError(c, status, &models.AppError{Code: models.CodeNotFound, Message: "Not found"})
	case fiber.StatusConflict:
		return models.RespondWithError(c, status, models.NewConflictError("Already exists"))
	}

	middleware.Logger.ErrorContext(c.UserContext(), "request failed", "error", err.Error(), "path", c.Path())
	return models.RespondWithError(c, status, models.NewInternalError(err))
}

func errorMessage(err error) string {
	if errors.Is(err, interaction.ErrEmptyContent) {
		return "Comment content is required"
	}
	return err.Error()
}
