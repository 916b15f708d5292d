// Package api exposes the persisted canonical records over a read-only
// HTTP surface for analysis tooling.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/evmartinez/airwatch/internal/config"
	"github.com/evmartinez/airwatch/internal/store"
)

// Server bundles router and dependencies for the export API.
type Server struct {
	cfg    config.Config
	store  store.Reader
	engine *gin.Engine
}

// New constructs a server with routes and middleware.
func New(cfg config.Config, reader store.Reader) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(gin.Logger())

	if cfg.API.BearerToken != "" {
		engine.Use(bearerAuthMiddleware(cfg.API.BearerToken))
	}

	server := &Server{cfg: cfg, store: reader, engine: engine}
	server.registerRoutes()
	return server
}

// Engine exposes the underlying gin engine (for tests).
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Run starts the HTTP server and blocks until shutdown.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.cfg.ListenAddr(),
		Handler: s.engine,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) registerRoutes() {
	s.engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := s.engine.Group("/api/v1")
	{
		v1.GET("/stations", s.handleListStations)
		v1.GET("/stations/:id/measurements", s.handleStationMeasurements)
		v1.GET("/weather/nearest", s.handleNearestWeather)
	}
}

func bearerAuthMiddleware(expected string) gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") {
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		token := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
		if token != expected {
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		c.Next()
	}
}

func (s *Server) handleListStations(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	stations, err := s.store.ListStations(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": stations,
		"meta": gin.H{"count": len(stations)},
	})
}

func (s *Server) handleStationMeasurements(c *gin.Context) {
	stationID := c.Param("id")
	if stationID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "station id is required"})
		return
	}

	limit := s.cfg.API.DefaultLimit
	if limitStr := c.Query("last_n"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid last_n"})
			return
		}
		limit = parsed
	}

	var since, until *time.Time
	if startStr := c.Query("start"); startStr != "" {
		t, err := time.Parse(time.RFC3339, startStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid start timestamp"})
			return
		}
		tt := t.UTC()
		since = &tt
	}
	if endStr := c.Query("end"); endStr != "" {
		t, err := time.Parse(time.RFC3339, endStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid end timestamp"})
			return
		}
		tt := t.UTC()
		until = &tt
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 15*time.Second)
	defer cancel()

	measurements, err := s.store.Measurements(ctx, store.MeasurementQuery{
		StationID: stationID,
		Since:     since,
		Until:     until,
		Limit:     limit,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"station_id":   stationID,
		"count":        len(measurements),
		"measurements": measurements,
	})
}

// handleNearestWeather computes the enrichment association: the weather
// sample closest in time and location to the query point.
func (s *Server) handleNearestWeather(c *gin.Context) {
	lat, err := strconv.ParseFloat(c.Query("lat"), 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid lat"})
		return
	}
	lon, err := strconv.ParseFloat(c.Query("lon"), 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid lon"})
		return
	}
	ts, err := time.Parse(time.RFC3339, c.Query("ts"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid ts"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	sample, err := s.store.NearestSample(ctx, lat, lon, ts.UTC())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if sample == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no weather sample near query"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": sample})
}
