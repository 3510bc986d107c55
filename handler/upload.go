package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/shhirl/fixmybanana/pkg/logger"
	"github.com/shhirl/fixmybanana/service"
)

type UploadHandler struct {
	store  *service.FileStore
	vision *service.VisionService
}

func NewUploadHandler(store *service.FileStore, vision *service.VisionService) *UploadHandler {
	return &UploadHandler{
		store:  store,
		vision: vision,
	}
}

// Index renders the upload form
func (h *UploadHandler) Index(c *gin.Context) {
	c.HTML(http.StatusOK, "index.html", nil)
}

// Upload validates the submitted photo, stores it, runs the classification
// and renders the result page. Invalid uploads redirect back to the form.
func (h *UploadHandler) Upload(c *gin.Context) {
	ctx := c.Request.Context()

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			c.String(http.StatusRequestEntityTooLarge, "Uploaded file is too large")
			return
		}
		c.Redirect(http.StatusFound, "/")
		return
	}
	defer file.Close()

	if header.Filename == "" || !h.store.Allowed(header.Filename) {
		logger.Debug(ctx, "upload rejected", "filename", header.Filename)
		c.Redirect(http.StatusFound, "/")
		return
	}

	filename, err := service.Sanitize(header.Filename)
	if err != nil {
		logger.Debug(ctx, "upload rejected", "filename", header.Filename, "error", err)
		c.Redirect(http.StatusFound, "/")
		return
	}

	storedPath, err := h.store.Save(filename, file)
	if err != nil {
		logger.Error(ctx, "failed to store upload", "filename", filename, "error", err)
		c.HTML(http.StatusOK, "result.html", gin.H{
			"Analysis":    "Failed to store uploaded image. Please try again.",
			"FormQuality": "error",
		})
		return
	}

	logger.Info(ctx, "upload stored", "filename", filename, "path", storedPath)

	result := h.vision.Classify(ctx, storedPath)

	c.HTML(http.StatusOK, "result.html", gin.H{
		"Analysis":      result.Analysis,
		"FormQuality":   string(result.FormQuality),
		"UploadedImage": filename,
	})
}

// ServeUpload streams a previously stored file back by filename
func (h *UploadHandler) ServeUpload(c *gin.Context) {
	filename := c.Param("filename")

	path, err := h.store.Path(filename)
	if err != nil {
		c.String(http.StatusNotFound, "File not found")
		return
	}

	c.File(path)
}
