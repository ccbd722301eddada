package rest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dfryer1193/evstations/api"
	"github.com/dfryer1193/evstations/station/application"
	"github.com/dfryer1193/evstations/station/domain"
	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const (
	defaultSortField  = "default"
	fallbackImageType = "image/png"
)

// StationService is the set of station operations the HTTP layer needs.
type StationService interface {
	ListAll(ctx context.Context) ([]*domain.Station, error)
	ListLimited(ctx context.Context, limit int) ([]*domain.Station, error)
	ListSorted(ctx context.Context, direction, field string) ([]*domain.Station, error)
	GetByID(ctx context.Context, id int64) (*domain.Station, error)
	GetImage(ctx context.Context, key string) ([]byte, error)
	Create(ctx context.Context, in application.StationInput, image []byte) (*domain.Station, error)
	Update(ctx context.Context, id int64, in application.StationInput, image []byte) (*domain.Station, error)
	Delete(ctx context.Context, id int64) error
}

var _ StationService = (*application.StationService)(nil)

type StationsHandler struct {
	service        StationService
	imageMaxAge    time.Duration
	maxUploadBytes int64
}

func NewStationsHandler(service StationService, imageMaxAge time.Duration, maxUploadBytes int64) *StationsHandler {
	return &StationsHandler{
		service:        service,
		imageMaxAge:    imageMaxAge,
		maxUploadBytes: maxUploadBytes,
	}
}

func (h *StationsHandler) RegisterRoutes(router gin.IRouter) {
	stations := router.Group("/api/stations")
	{
		stations.GET("", h.ListStations)
		stations.POST("", h.CreateStation)
		stations.GET("/images/:image", h.GetImage)
		stations.GET("/show/:id", h.GetStation)
		stations.PUT("/:id/edit", h.UpdateStation)
		stations.DELETE("/delete/:id", h.DeleteStation)
	}
}

// ListStations dispatches on the query: limit wins, then sort (with param
// defaulting to an id ordering), otherwise every station is returned.
func (h *StationsHandler) ListStations(c *gin.Context) {
	var query api.ListQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		abort(c, http.StatusBadRequest, err)
		return
	}

	ctx := c.Request.Context()
	var (
		stations []*domain.Station
		err      error
	)
	switch {
	case query.Limit != nil:
		stations, err = h.service.ListLimited(ctx, *query.Limit)
	case query.Sort != nil:
		field := defaultSortField
		if query.Param != nil {
			field = *query.Param
		}
		stations, err = h.service.ListSorted(ctx, *query.Sort, field)
	default:
		stations, err = h.service.ListAll(ctx)
	}

	if err != nil {
		abort(c, statusFor(err, http.StatusInternalServerError), err)
		return
	}
	c.JSON(http.StatusOK, api.FromDomainList(stations))
}

func (h *StationsHandler) GetImage(c *gin.Context) {
	content, err := h.service.GetImage(c.Request.Context(), c.Param("image"))
	if err != nil {
		abort(c, statusFor(err, http.StatusInternalServerError), err)
		return
	}

	contentType := mimetype.Detect(content).String()
	if !strings.HasPrefix(contentType, "image/") {
		contentType = fallbackImageType
	}

	c.Header("Cache-Control", fmt.Sprintf("max-age=%d", int64(h.imageMaxAge.Seconds())))
	c.Data(http.StatusOK, contentType, content)
}

func (h *StationsHandler) CreateStation(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes)

	var form api.StationForm
	if err := c.ShouldBind(&form); err != nil {
		abort(c, http.StatusBadRequest, err)
		return
	}

	header, err := c.FormFile("image")
	if err != nil {
		abort(c, http.StatusBadRequest, fmt.Errorf("%w: image is required", domain.ErrInvalidArgument))
		return
	}
	if !isImage(header) {
		abort(c, http.StatusBadRequest, fmt.Errorf("%w: content type %q is not an image", domain.ErrInvalidArgument, header.Header.Get("Content-Type")))
		return
	}

	image, err := readUpload(header)
	if err != nil {
		abort(c, http.StatusBadRequest, err)
		return
	}

	station, err := h.service.Create(c.Request.Context(), toInput(form), image)
	if err != nil {
		abort(c, statusFor(err, http.StatusInternalServerError), err)
		return
	}
	c.JSON(http.StatusCreated, api.FromDomain(station))
}

// GetStation answers 302 with the station body, matching the listing clients in use.
func (h *StationsHandler) GetStation(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	station, err := h.service.GetByID(c.Request.Context(), id)
	if err != nil {
		abort(c, http.StatusInternalServerError, err)
		return
	}
	if station == nil {
		abort(c, http.StatusNotFound, fmt.Errorf("station %d: %w", id, domain.ErrNotFound))
		return
	}
	c.JSON(http.StatusFound, api.FromDomain(station))
}

// UpdateStation replaces a station. An image part whose content type is not
// image/* is ignored and the existing image is kept.
func (h *StationsHandler) UpdateStation(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes)

	var form api.StationForm
	if err := c.ShouldBind(&form); err != nil {
		abort(c, http.StatusBadRequest, err)
		return
	}

	var image []byte
	if header, err := c.FormFile("image"); err == nil && isImage(header) {
		image, err = readUpload(header)
		if err != nil {
			abort(c, http.StatusBadRequest, err)
			return
		}
	}

	station, err := h.service.Update(c.Request.Context(), id, toInput(form), image)
	if err != nil {
		abort(c, http.StatusBadRequest, err)
		return
	}
	c.JSON(http.StatusOK, api.FromDomain(station))
}

func (h *StationsHandler) DeleteStation(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	if err := h.service.Delete(c.Request.Context(), id); err != nil {
		abort(c, http.StatusBadRequest, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func toInput(form api.StationForm) application.StationInput {
	return application.StationInput{
		Name:    form.Name,
		Price:   *form.Price,
		Address: form.Address,
	}
}

func parseID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		abort(c, http.StatusBadRequest, fmt.Errorf("%w: malformed station id %q", domain.ErrInvalidArgument, c.Param("id")))
		return 0, false
	}
	return id, true
}

func isImage(header *multipart.FileHeader) bool {
	return strings.HasPrefix(header.Header.Get("Content-Type"), "image/")
}

func readUpload(header *multipart.FileHeader) ([]byte, error) {
	f, err := header.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open upload: %w", err)
	}
	defer f.Close()

	content, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}
	return content, nil
}

// statusFor maps domain errors to a status, using fallback for anything unexpected.
func statusFor(err error, fallback int) int {
	switch {
	case errors.Is(err, domain.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	default:
		return fallback
	}
}

// abort records err for the request log and answers with a body that carries no internal detail.
func abort(c *gin.Context, status int, err error) {
	_ = c.Error(err)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("path", c.Request.URL.Path).Msg("Request failed")
	}
	c.AbortWithStatusJSON(status, gin.H{"error": http.StatusText(status)})
}
