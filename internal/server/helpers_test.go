package server

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"gallery/internal/generation"
	"gallery/internal/interaction"
	"gallery/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestHumanizeParam(t *testing.T) {
	tests := []struct {
		param    string
		expected string
	}{
		{"id", "ID"},
		{"imageId", "image ID"},
		{"commentId", "comment ID"},
		{"something", "something"},
	}
	for _, tt := range tests {
		t.Run(tt.param, func(t *testing.T) {
			assert.Equal(t, tt.expected, humanizeParam(tt.param))
		})
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"empty content", interaction.ErrEmptyContent, http.StatusBadRequest},
		{"validation", models.NewValidationError("bad"), http.StatusBadRequest},
		{"forbidden wrapped", &interaction.Error{Op: "delete", Err: models.ErrForbidden}, http.StatusForbidden},
		{"not found wrapped", &interaction.Error{Op: "like", Err: gorm.ErrRecordNotFound}, http.StatusNotFound},
		{"conflict", fmt.Errorf("%w: dup", models.ErrConflict), http.StatusConflict},
		{"unsupported model", generation.ErrUnsupportedModel, http.StatusNotFound},
		{"invalid request", generation.ErrInvalidRequest, http.StatusBadRequest},
		{"upstream", generation.ErrUpstream, http.StatusBadGateway},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(tt.err))
		})
	}
}

func TestRespondError_Bodies(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		code    string
		message string
	}{
		{"internal hides cause", errors.New("pq: connection reset"), http.StatusInternalServerError, models.CodeInternal, "Internal server error"},
		{"bare not found", gorm.ErrRecordNotFound, http.StatusNotFound, models.CodeNotFound, "Not found"},
		{"generation kind", generation.ErrUpstream, http.StatusBadGateway, string(generation.KindUpstream), ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := fiber.New()
			app.Get("/", func(c *fiber.Ctx) error { return respondError(c, tt.err) })

			resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil))
			require.NoError(t, err)
			defer func() { _ = resp.Body.Close() }()

			assert.Equal(t, tt.status, resp.StatusCode)
			body := decode[models.ErrorResponse](t, resp)
			assert.Equal(t, tt.code, body.Code)
			if tt.message != "" {
				assert.Equal(t, tt.message, body.Error)
			}
			assert.NotContains(t, body.Details, "pq:")
		})
	}
}
