package server

import (
	"io"
	"strings"

	"gallery/internal/gallery"
	"gallery/internal/layout"
	"gallery/internal/middleware"
	"gallery/internal/models"

	"github.com/gofiber/fiber/v2"
)

// defaultViewportWidth is used when the client does not send ?width=.
const defaultViewportWidth = 1024

// FeedResponse is the gallery feed with its masonry arrangement.
type FeedResponse struct {
	Images []*models.Image `json:"images"`
	// Columns holds image ids per column, in display order.
	Columns [][]string `json:"columns"`
}

// ListImages handles GET /api/images?scope=recent|all&user=&q=&kind=all|ai|uploads&width=
// @Summary List the gallery feed
// @Description Newest first, with the masonry column arrangement for the viewport width. q and kind filter the feed before it is arranged.
// @Tags images
// @Produce json
// @Param scope query string false "recent (default) or all"
// @Param user query string false "Only this member's images"
// @Param q query string false "Search title, description and tags"
// @Param kind query string false "all, ai or uploads"
// @Param width query int false "Viewport width in pixels"
// @Success 200 {object} FeedResponse
// @Failure 400 {object} models.ErrorResponse
// @Router /images [get]
func (s *Server) ListImages(c *fiber.Ctx) error {
	ctx := c.UserContext()

	kind, err := gallery.ParseKind(c.Query("kind"))
	if err != nil {
		return respondError(c, err)
	}
	filter := gallery.Filter{Query: c.Query("q"), Kind: kind}

	var images []*models.Image
	switch user, scope := strings.TrimSpace(c.Query("user")), c.Query("scope", "recent"); {
	case user != "":
		images, err = s.gallery.ListByUser(ctx, user)
	case scope == "all":
		images, err = s.gallery.ListAll(ctx)
	case scope == "recent":
		images, err = s.gallery.ListRecent(ctx)
	default:
		return models.RespondWithError(c, fiber.StatusBadRequest, models.NewValidationError("scope must be recent or all"))
	}
	if err != nil {
		return respondError(c, err)
	}
	// Cached feeds are shared, so filtering happens after the read.
	images = filter.Apply(images)
	if images == nil {
		images = []*models.Image{}
	}

	ids := make([]string, len(images))
	for i, img := range images {
		ids[i] = img.ID
	}
	width := c.QueryInt("width", defaultViewportWidth)

	return c.JSON(FeedResponse{
		Images:  images,
		Columns: layout.Distribute(ids, layout.Columns(width)),
	})
}

// GetImage handles GET /api/images/:id
// @Summary Get an image
// @Tags images
// @Produce json
// @Param id path string true "Image ID"
// @Success 200 {object} models.Image
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /images/{id} [get]
func (s *Server) GetImage(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return nil
	}
	img, err := s.openImage(c, id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(img)
}

// UploadImage handles POST /api/images (multipart: image, title, description, tags)
// @Summary Upload an image
// @Tags images
// @Accept multipart/form-data
// @Produce json
// @Param image formData file true "Image file"
// @Param title formData string true "Title"
// @Param description formData string false "Description"
// @Param tags formData string false "Comma-separated tags"
// @Success 201 {object} models.Image
// @Failure 400 {object} models.ErrorResponse
// @Failure 401 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /images [post]
func (s *Server) UploadImage(c *fiber.Ctx) error {
	content, contentType, err := readFormFile(c, "image")
	if err != nil {
		return respondError(c, err)
	}

	uploaded, err := s.gallery.Upload(c.UserContext(), gallery.UploadInput{
		UserID:      middleware.UserID(c),
		Title:       c.FormValue("title"),
		Description: c.FormValue("description"),
		Tags:        gallery.ParseTags(c.FormValue("tags")),
		ContentType: contentType,
		Content:     content,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(uploaded)
}

// openImage loads the image and seeds the caller's interaction state with it.
func (s *Server) openImage(c *fiber.Ctx, id string) (*models.Image, error) {
	img, err := s.gallery.GetByID(c.UserContext(), id)
	if err != nil {
		return nil, err
	}
	s.store(middleware.UserID(c)).Open(img)
	return img, nil
}

func readFormFile(c *fiber.Ctx, field string) ([]byte, string, error) {
	file, err := c.FormFile(field)
	if err != nil {
		return nil, "", models.NewValidationError("No file uploaded")
	}

	src, err := file.Open()
	if err != nil {
		return nil, "", models.NewValidationError("Unable to read uploaded file")
	}
	defer func() { _ = src.Close() }()

	content, err := io.ReadAll(src)
	if err != nil {
		return nil, "", models.NewValidationError("Unable to read uploaded file")
	}
	return content, file.Header.Get("Content-Type"), nil
}
