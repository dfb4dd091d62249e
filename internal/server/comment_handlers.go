package server

import (
	"gallery/internal/middleware"
	"gallery/internal/models"

	"github.com/gofiber/fiber/v2"
)

// GetComments returns an image's comments, oldest first (public)
// @Summary List an image's comments
// @Tags comments
// @Produce json
// @Param id path string true "Image ID"
// @Success 200 {array} models.Comment
// @Failure 404 {object} models.ErrorResponse
// @Router /images/{id}/comments [get]
func (s *Server) GetComments(c *fiber.Ctx) error {
	ctx := c.UserContext()

	imageID, err := parseID(c, "id")
	if err != nil {
		return nil
	}
	if _, err := s.openImage(c, imageID); err != nil {
		return respondError(c, err)
	}

	st := s.store(middleware.UserID(c))
	if err := st.FetchComments(ctx, imageID); err != nil {
		return respondError(c, err)
	}
	comments := st.Comments(imageID)
	if comments == nil {
		comments = []*models.Comment{}
	}
	return c.JSON(comments)
}

// CreateComment adds a comment to an image (protected)
// @Summary Comment on an image
// @Tags comments
// @Accept json
// @Produce json
// @Param id path string true "Image ID"
// @Param request body object{content=string} true "Comment"
// @Success 201 {object} models.Comment
// @Failure 400 {object} models.ErrorResponse
// @Failure 401 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /images/{id}/comments [post]
func (s *Server) CreateComment(c *fiber.Ctx) error {
	ctx := c.UserContext()
	userID := middleware.UserID(c)

	imageID, err := parseID(c, "id")
	if err != nil {
		return nil
	}

	var req struct {
		Content string `json:"content"`
	}
	if parseErr := c.BodyParser(&req); parseErr != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest, models.NewValidationError("Invalid request body"))
	}

	created, err := s.store(userID).AddComment(ctx, imageID, req.Content, userID)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(created)
}

// DeleteComment removes one of the caller's comments (protected)
// @Summary Delete own comment
// @Tags comments
// @Param id path string true "Comment ID"
// @Success 204
// @Failure 403 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /comments/{id} [delete]
func (s *Server) DeleteComment(c *fiber.Ctx) error {
	userID := middleware.UserID(c)

	commentID, err := parseID(c, "id")
	if err != nil {
		return nil
	}

	if err := s.store(userID).DeleteComment(c.UserContext(), commentID, userID); err != nil {
		return respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// GetLike reports the caller's like state and the image's like count (public)
// @Summary Like state of an image
// @Tags likes
// @Produce json
// @Param id path string true "Image ID"
// @Success 200 {object} interaction.LikeResult
// @Failure 404 {object} models.ErrorResponse
// @Router /images/{id}/like [get]
func (s *Server) GetLike(c *fiber.Ctx) error {
	ctx := c.UserContext()
	userID := middleware.UserID(c)

	imageID, err := parseID(c, "id")
	if err != nil {
		return nil
	}
	img, err := s.openImage(c, imageID)
	if err != nil {
		return respondError(c, err)
	}

	liked := false
	if userID != "" {
		if liked, err = s.store(userID).CheckUserLike(ctx, imageID, userID); err != nil {
			return respondError(c, err)
		}
	}
	return c.JSON(fiber.Map{
		"image_id":   imageID,
		"liked":      liked,
		"like_count": img.LikeCount,
	})
}

// ToggleLike likes or unlikes an image for the caller (protected)
// @Summary Like or unlike an image
// @Description The returned like_count is the committed value.
// @Tags likes
// @Produce json
// @Param id path string true "Image ID"
// @Success 200 {object} interaction.LikeResult
// @Failure 401 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /images/{id}/like [post]
func (s *Server) ToggleLike(c *fiber.Ctx) error {
	userID := middleware.UserID(c)

	imageID, err := parseID(c, "id")
	if err != nil {
		return nil
	}
	if _, err := s.openImage(c, imageID); err != nil {
		return respondError(c, err)
	}

	res, err := s.store(userID).ToggleLike(c.UserContext(), imageID, userID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(res)
}
