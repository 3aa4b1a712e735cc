package api

import (
	"errors"
	"fmt"
	"net/http"

	"elevation_service/internal/core"
	"elevation_service/internal/domain/model"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// MaxLookupCoordinates bounds a single lookup request.
const MaxLookupCoordinates = 1000

type Handler struct {
	service *core.ElevationService
	logger  *zap.Logger
}

func NewHandler(service *core.ElevationService, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{service: service, logger: logger}
}

// NewRouter mounts the serving API.
func NewRouter(service *core.ElevationService, logger *zap.Logger) *gin.Engine {
	h := NewHandler(service, logger)

	router := gin.New()
	router.Use(gin.Recovery(), h.requestLogger())

	router.GET("/health", h.Health)

	v1 := router.Group("/api/v1")
	{
		v1.POST("/elevation/lookup", h.Lookup)
		v1.GET("/elevation/stats", h.Stats)
		v1.POST("/profiles", h.Profile)
		v1.GET("/profiles/:segmentId", h.ProfileByID)
	}
	return router
}

type LookupRequest struct {
	Coordinates []model.Coordinate `json:"coordinates"`
	// Locations is accepted for clients speaking the provider wire format.
	Locations []model.Coordinate `json:"locations"`
}

type LookupResponse struct {
	Results []model.Resolution `json:"results"`
}

type ProfileRequest struct {
	Road     model.RoadSegment `json:"road"`
	Interval float64           `json:"interval_meters"`
	Refresh  bool              `json:"refresh"`
}

func (h *Handler) Lookup(c *gin.Context) {
	var req LookupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	coords := req.Coordinates
	if len(coords) == 0 {
		coords = req.Locations
	}
	if len(coords) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "coordinates are required"})
		return
	}
	if len(coords) > MaxLookupCoordinates {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("at most %d coordinates per request", MaxLookupCoordinates)})
		return
	}
	for i, co := range coords {
		if co.Lat < -90 || co.Lat > 90 || co.Lng < -180 || co.Lng > 180 {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("coordinate %d out of range: %s", i, co)})
			return
		}
	}

	results, err := h.service.LookupBatch(c.Request.Context(), coords)
	if err != nil {
		h.logger.Error("lookup failed", zap.Int("coordinates", len(coords)), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup failed"})
		return
	}
	c.JSON(http.StatusOK, LookupResponse{Results: results})
}

func (h *Handler) Profile(c *gin.Context) {
	var req ProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if req.Road.OSMWayID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "road.osm_way_id is required"})
		return
	}

	ctx := c.Request.Context()
	var (
		p   *model.RoadElevationProfile
		err error
	)
	if req.Refresh {
		p, err = h.service.BuildProfile(ctx, req.Road, req.Interval)
	} else {
		p, err = h.service.GetProfile(ctx, req.Road, req.Interval)
	}
	if err != nil {
		h.writeProfileError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *Handler) ProfileByID(c *gin.Context) {
	p, err := h.service.ProfileByID(c.Request.Context(), c.Param("segmentId"))
	if err != nil {
		h.writeProfileError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *Handler) writeProfileError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, model.ErrInsufficientGeometry), errors.Is(err, model.ErrInvalidInterval):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, model.ErrProfileNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "profile not found"})
	case core.IsProviderFailure(err):
		h.logger.Warn("profile needs unavailable elevation data", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "elevation provider unavailable"})
	default:
		h.logger.Error("profile request failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func (h *Handler) Stats(c *gin.Context) {
	stats, err := h.service.Stats(c.Request.Context())
	if err != nil {
		h.logger.Error("stats failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *Handler) Health(c *gin.Context) {
	res, err := h.service.Health(c.Request.Context())
	if err != nil {
		h.logger.Error("health lookup failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "lookup": res})
}

func (h *Handler) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		h.logger.Debug("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
		)
	}
}
