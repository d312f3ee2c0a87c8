package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gamassss/shortlink/internal/domain"
	"github.com/gamassss/shortlink/pkg/response"
	"github.com/gamassss/shortlink/pkg/validator"
	"github.com/gin-gonic/gin"
)

type LinkResponse struct {
	ShortURL string `json:"short_url"`
	*domain.Link
}

// LinkHandler serves read-only link details. Lookups here never count as visits.
type LinkHandler struct {
	service ShortenerService
	baseURL string
}

func NewLinkHandler(service ShortenerService, baseURL string) *LinkHandler {
	return &LinkHandler{service: service, baseURL: strings.TrimRight(baseURL, "/")}
}

func (h *LinkHandler) GetLink(c *gin.Context) {
	shortKey := c.Param("shortKey")
	if !validator.IsShortKey(shortKey) {
		response.BadRequest(c, "Invalid short key")
		return
	}

	link, err := h.service.Resolve(c.Request.Context(), shortKey)
	if err != nil {
		h.respondError(c, err)
		return
	}

	response.OK(c, "Link retrieved successfully", LinkResponse{
		ShortURL: h.baseURL + "/" + link.Short,
		Link:     link,
	})
}

func (h *LinkHandler) GetStats(c *gin.Context) {
	shortKey := c.Param("shortKey")
	if !validator.IsShortKey(shortKey) {
		response.BadRequest(c, "Invalid short key")
		return
	}

	stats, err := h.service.Stats(c.Request.Context(), shortKey)
	if err != nil {
		h.respondError(c, err)
		return
	}

	response.Success(c, http.StatusOK, "Stats retrieved successfully", stats)
}

func (h *LinkHandler) respondError(c *gin.Context, err error) {
	if errors.Is(err, domain.ErrNotFound) {
		response.NotFound(c, "Link not found")
		return
	}

	_ = c.Error(err)
	response.InternalServerError(c, "Failed to load link")
}
