package handlers

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/example/recipe-finder/internal/page"
	"github.com/example/recipe-finder/internal/recipes"
	"github.com/example/recipe-finder/internal/session"
	"github.com/example/recipe-finder/internal/view"
)

// MaxUploadSize is the default limit for an uploaded image.
const MaxUploadSize = 10 << 20

// formOverhead allows for multipart boundaries and headers around the file.
const formOverhead = 64 << 10

var errUploadTooLarge = errors.New("uploaded file is too large")

// Views resolves the UploadView of a session.
type Views interface {
	View(ctx context.Context, sessionID string) *view.UploadView
}

// Options tune the routes registered by RegisterRoutes.
type Options struct {
	// MaxUploadBytes caps the size of an uploaded image. Zero means MaxUploadSize.
	MaxUploadBytes int64
	Logger         *zap.Logger
}

type handler struct {
	views          Views
	maxUploadBytes int64
	logger         *zap.Logger
}

// RegisterRoutes wires the page and the JSON API to the Gin router.
// sessionMiddleware must store the session id with session.WithID.
func RegisterRoutes(router *gin.Engine, views Views, sessionMiddleware gin.HandlerFunc, opts Options) {
	h := &handler{views: views, maxUploadBytes: opts.MaxUploadBytes, logger: opts.Logger}
	if h.maxUploadBytes <= 0 {
		h.maxUploadBytes = MaxUploadSize
	}
	if h.logger == nil {
		h.logger = zap.NewNop()
	}
	h.logger = h.logger.Named("handlers")

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	pages := router.Group("/", sessionMiddleware)
	pages.GET("/", h.showPage)
	pages.POST("/upload", h.uploadPage)

	api := router.Group("/api/v1", sessionMiddleware)
	api.GET("/view", h.getView)
	api.POST("/file", h.selectFile)
	api.POST("/submit", h.submit)
}

func (h *handler) sessionView(c *gin.Context) (*view.UploadView, bool) {
	sessionID, ok := session.ID(c.Request.Context())
	if !ok {
		h.logger.Error("request without session", zap.String("path", c.FullPath()))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "session unavailable"})
		return nil, false
	}
	return h.views.View(c.Request.Context(), sessionID), true
}

func (h *handler) showPage(c *gin.Context) {
	v, ok := h.sessionView(c)
	if !ok {
		return
	}
	h.renderPage(c, http.StatusOK, v, nil)
}

func (h *handler) uploadPage(c *gin.Context) {
	v, ok := h.sessionView(c)
	if !ok {
		return
	}

	upload, err := h.readUpload(c)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, errUploadTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		h.logger.Warn("rejected upload", zap.Error(err))
		h.renderPage(c, status, v, &view.Notice{Kind: view.NoticeWarning, Message: uploadErrorMessage(err)})
		return
	}
	if upload != nil {
		v.SelectFile(upload)
	}

	err = v.Submit(c.Request.Context())
	h.renderPage(c, submitStatus(err), v, nil)
}

func (h *handler) renderPage(c *gin.Context, status int, v *view.UploadView, notice *view.Notice) {
	state := v.State()
	v.TakeNotice()

	var buf bytes.Buffer
	if err := page.Render(&buf, page.Data{Action: "/upload", State: state, Notice: notice}); err != nil {
		h.logger.Error("failed to render page", zap.Error(err))
		c.String(http.StatusInternalServerError, "failed to render page")
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Data(status, "text/html; charset=utf-8", buf.Bytes())
}

func (h *handler) getView(c *gin.Context) {
	v, ok := h.sessionView(c)
	if !ok {
		return
	}
	state := v.State()
	v.TakeNotice()
	c.JSON(http.StatusOK, state)
}

func (h *handler) selectFile(c *gin.Context) {
	v, ok := h.sessionView(c)
	if !ok {
		return
	}

	upload, err := h.readUpload(c)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, errUploadTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		c.JSON(status, gin.H{"error": uploadErrorMessage(err)})
		return
	}
	if upload == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}

	v.SelectFile(upload)
	c.JSON(http.StatusOK, v.State())
}

func (h *handler) submit(c *gin.Context) {
	v, ok := h.sessionView(c)
	if !ok {
		return
	}

	err := v.Submit(c.Request.Context())
	state := v.State()
	v.TakeNotice()

	status := submitStatus(err)
	if err == nil {
		c.JSON(status, state)
		return
	}
	message := view.FetchFailedMessage
	switch {
	case errors.Is(err, view.ErrNoFileSelected):
		message = view.NoFileMessage
	case errors.Is(err, view.ErrSubmitInProgress):
		message = "a request is already in progress"
	}
	c.JSON(status, gin.H{"error": message, "view": state})
}

// readUpload returns the "file" part of a multipart form, or nil when the
// request carries none.
func (h *handler) readUpload(c *gin.Context) (*recipes.Upload, error) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes+formOverhead)

	header, err := c.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr), strings.Contains(err.Error(), "request body too large"):
			return nil, errUploadTooLarge
		case errors.Is(err, http.ErrMissingFile), errors.Is(err, http.ErrNotMultipart):
			return nil, nil
		default:
			return nil, err
		}
	}
	if header.Size > h.maxUploadBytes {
		return nil, errUploadTooLarge
	}

	src, err := header.Open()
	if err != nil {
		return nil, err
	}
	defer src.Close()

	data, err := io.ReadAll(io.LimitReader(src, h.maxUploadBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > h.maxUploadBytes {
		return nil, errUploadTooLarge
	}

	return &recipes.Upload{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

func submitStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, view.ErrNoFileSelected):
		return http.StatusBadRequest
	case errors.Is(err, view.ErrSubmitInProgress):
		return http.StatusConflict
	default:
		return http.StatusBadGateway
	}
}

func uploadErrorMessage(err error) string {
	if errors.Is(err, errUploadTooLarge) {
		return "The selected image is too large."
	}
	return "The upload could not be read."
}
