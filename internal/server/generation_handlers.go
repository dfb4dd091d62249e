package server

import (
	"net/http"
	"strings"

	"gallery/internal/gallery"
	"gallery/internal/generation"
	"gallery/internal/middleware"
	"gallery/internal/models"

	"github.com/gofiber/fiber/v2"
)

// ListProviders handles GET /api/providers
// @Summary List image generation providers
// @Tags generation
// @Produce json
// @Success 200 {object} object{providers=[]generation.Descriptor}
// @Router /providers [get]
func (s *Server) ListProviders(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"providers": s.generator.Providers()})
}

// Generate handles POST /api/generate and answers with the raw image bytes.
// @Summary Generate an image
// @Description Answers with the image bytes; X-Provider-ID names the provider. Errors carry retryable when the same request may succeed later.
// @Tags generation
// @Accept json
// @Produce image/png,image/jpeg,image/webp
// @Param request body generation.Request true "Prompt and model"
// @Success 200 {file} binary
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Failure 429 {object} models.ErrorResponse
// @Failure 502 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /generate [post]
func (s *Server) Generate(c *fiber.Ctx) error {
	var req generation.Request
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest, models.NewValidationError("Invalid request body"))
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return models.RespondWithError(c, fiber.StatusBadRequest, models.NewValidationError("Prompt is required"))
	}

	asset, err := s.generator.Generate(c.UserContext(), req)
	if err != nil {
		return respondError(c, err)
	}

	c.Set(fiber.HeaderContentType, asset.MediaType)
	c.Set(fiber.HeaderCacheControl, "no-store")
	c.Set("X-Provider-ID", asset.ProviderID)
	return c.Send(asset.Data)
}

// SaveGenerated handles POST /api/generate/save (multipart: image, prompt,
// model, title, description, tags). The client posts back the bytes it got
// from /api/generate.
// @Summary Save a generated image to the gallery
// @Tags generation
// @Accept multipart/form-data
// @Produce json
// @Param image formData file true "Generated image bytes"
// @Param model formData string true "Provider ID"
// @Param prompt formData string true "Prompt"
// @Param title formData string false "Title, defaults to the prompt"
// @Param description formData string false "Description"
// @Param tags formData string false "Comma-separated tags"
// @Success 201 {object} models.Image
// @Failure 400 {object} models.ErrorResponse
// @Failure 401 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /generate/save [post]
func (s *Server) SaveGenerated(c *fiber.Ctx) error {
	content, contentType, err := readFormFile(c, "image")
	if err != nil {
		return respondError(c, err)
	}
	model := strings.TrimSpace(c.FormValue("model"))
	if model == "" {
		return models.RespondWithError(c, fiber.StatusBadRequest, models.NewValidationError("Model is required"))
	}
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(content)
	}

	saved, err := s.gallery.SaveGenerated(c.UserContext(), gallery.SaveGeneratedInput{
		UserID:      middleware.UserID(c),
		Title:       c.FormValue("title"),
		Description: c.FormValue("description"),
		Tags:        gallery.ParseTags(c.FormValue("tags")),
		Prompt:      c.FormValue("prompt"),
		Asset:       &generation.Asset{Data: content, MediaType: contentType, ProviderID: model},
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(saved)
}
