package main

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/eshaffer321/reconcile-backend/internal/domain/model"
	"github.com/eshaffer321/reconcile-backend/internal/infrastructure/storage"
)

// DashboardServer serves a read-only view of persisted matches, history and
// aliases for reviewers.
type DashboardServer struct {
	repo   storage.Repository
	logger *slog.Logger
}

func NewDashboardServer(repo storage.Repository, logger *slog.Logger) *DashboardServer {
	return &DashboardServer{
		repo:   repo,
		logger: logger,
	}
}

// MatchDetailResponse is a match together with its audit trail
type MatchDetailResponse struct {
	Match   *model.Match         `json:"match"`
	History []model.HistoryEntry `json:"history"`
}

// Router builds the gin engine with CORS and routes.
func (s *DashboardServer) Router(allowedOrigins []string) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/api/health"},
	}))

	// CORS configuration
	router.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     []string{"GET", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	api := router.Group("/api")
	{
		api.GET("/health", s.getHealth)
		api.GET("/stats", s.getStats)
		api.GET("/matches", s.getMatches)
		api.GET("/matches/:matchId", s.getMatchDetail)
		api.GET("/history", s.getHistory)
		api.GET("/aliases", s.getAliases)
	}

	return router
}

func (s *DashboardServer) getHealth(c *gin.Context) {
	version, err := s.repo.SchemaVersion(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "schema_version": version})
}

func (s *DashboardServer) getStats(c *gin.Context) {
	stats, err := s.repo.GetStats(c.Request.Context())
	if err != nil {
		s.logger.Error("failed to fetch stats", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch stats"})
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (s *DashboardServer) getMatches(c *gin.Context) {
	filters := storage.MatchFilters{
		IncludeReversed: c.Query("include_reversed") == "true",
		OpenOnly:        c.Query("open") == "true",
		Limit:           queryInt(c, "limit", 100),
		Offset:          queryInt(c, "offset", 0),
	}

	matches, err := s.repo.ListMatches(c.Request.Context(), filters)
	if err != nil {
		s.logger.Error("failed to list matches", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch matches"})
		return
	}
	c.JSON(http.StatusOK, matches)
}

func (s *DashboardServer) getMatchDetail(c *gin.Context) {
	matchID := c.Param("matchId")

	match, err := s.repo.GetMatch(c.Request.Context(), matchID)
	if errors.Is(err, model.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Match not found"})
		return
	}
	if err != nil {
		s.logger.Error("failed to fetch match", "match_id", matchID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch match"})
		return
	}

	history, err := s.repo.HistoryForMatch(c.Request.Context(), matchID)
	if err != nil {
		s.logger.Error("failed to fetch history", "match_id", matchID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch history"})
		return
	}

	c.JSON(http.StatusOK, MatchDetailResponse{Match: match, History: history})
}

func (s *DashboardServer) getHistory(c *gin.Context) {
	if sinceStr := c.Query("since"); sinceStr != "" {
		since, err := time.Parse(time.RFC3339, sinceStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "since must be an RFC3339 timestamp"})
			return
		}
		entries, err := s.repo.HistorySince(c.Request.Context(), since)
		if err != nil {
			s.logger.Error("failed to fetch history", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch history"})
			return
		}
		c.JSON(http.StatusOK, entries)
		return
	}

	entries, err := s.repo.ListHistory(c.Request.Context(), queryInt(c, "limit", 100), queryInt(c, "offset", 0))
	if err != nil {
		s.logger.Error("failed to fetch history", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch history"})
		return
	}
	c.JSON(http.StatusOK, entries)
}

func (s *DashboardServer) getAliases(c *gin.Context) {
	aliases, err := s.repo.ListAliases(c.Request.Context())
	if err != nil {
		s.logger.Error("failed to list aliases", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch aliases"})
		return
	}

	counterpartyID := c.Query("counterparty_id")
	out := make([]model.Alias, 0, len(aliases))
	for _, a := range aliases {
		if counterpartyID == "" || a.CounterpartyID == counterpartyID {
			out = append(out, a)
		}
	}
	c.JSON(http.StatusOK, out)
}

func queryInt(c *gin.Context, key string, fallback int) int {
	v, err := strconv.Atoi(c.DefaultQuery(key, strconv.Itoa(fallback)))
	if err != nil || v < 0 {
		return fallback
	}
	return v
}
