package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gamassss/shortlink/internal/domain"
	"github.com/gamassss/shortlink/pkg/response"
	"github.com/gamassss/shortlink/pkg/validator"
	"github.com/gin-gonic/gin"
)

type ShortenerService interface {
	Shorten(ctx context.Context, longURL string) (*domain.Link, error)
	Resolve(ctx context.Context, shortKey string) (*domain.Link, error)
	Stats(ctx context.Context, shortKey string) (*domain.LinkStats, error)
}

type VisitRecorder interface {
	Record(ctx context.Context, link *domain.Link, r *http.Request)
}

type ShortenerHandler struct {
	service  ShortenerService
	recorder VisitRecorder
	baseURL  string
}

func NewShortenerHandler(service ShortenerService, recorder VisitRecorder, baseURL string) *ShortenerHandler {
	return &ShortenerHandler{
		service:  service,
		recorder: recorder,
		baseURL:  strings.TrimRight(baseURL, "/"),
	}
}

// ShortenForm handles the form post of the home page.
func (h *ShortenerHandler) ShortenForm(c *gin.Context) {
	h.shorten(c, c.PostForm("url"))
}

func (h *ShortenerHandler) ShortenJSON(c *gin.Context) {
	var req domain.ShortenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request body")
		return
	}

	if errs := validator.Validate(&req); len(errs) > 0 {
		response.ValidationErrors(c, errs)
		return
	}

	h.shorten(c, req.URL)
}

func (h *ShortenerHandler) shorten(c *gin.Context, longURL string) {
	ctx := c.Request.Context()

	link, err := h.service.Shorten(ctx, longURL)
	if err != nil {
		h.respondShortenError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"short_url": h.baseURL + "/" + link.Short,
		"short_key": link.Short,
		"long_url":  link.Long,
	})
}

func (h *ShortenerHandler) respondShortenError(c *gin.Context, err error) {
	var validation *domain.ValidationError
	var capacity *domain.CapacityError

	switch {
	case errors.As(err, &validation):
		response.BadRequest(c, validation.Reason)
	case errors.As(err, &capacity):
		response.ServiceUnavailable(c, "Could not allocate a short key, please retry")
	default:
		_ = c.Error(err)
		response.InternalServerError(c, "Failed to shorten URL")
	}
}

func (h *ShortenerHandler) Redirect(c *gin.Context) {
	shortKey := c.Param("shortKey")
	if !validator.IsShortKey(shortKey) {
		response.NotFound(c, "Link not found")
		return
	}

	ctx := c.Request.Context()
	link, err := h.service.Resolve(ctx, shortKey)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			response.NotFound(c, "Link not found")
			return
		}
		_ = c.Error(err)
		response.InternalServerError(c, "Failed to resolve link")
		return
	}

	h.recorder.Record(ctx, link, c.Request)

	c.Redirect(http.StatusFound, link.Long)
}
