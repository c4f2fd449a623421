package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/sensive/blog/store"
	"github.com/sensive/blog/utils"
)

const statsCacheKey = "cache:stats:site"

// StatsSource computes site totals.
type StatsSource interface {
	Stats(ctx context.Context) (store.SiteStats, error)
}

// StatsController provides blog statistics such as totals and today's page views.
type StatsController struct {
	source StatsSource
	rc     *redis.Client
	ttl    time.Duration
}

// NewStatsController creates a new StatsController instance. rc may be nil.
func NewStatsController(source StatsSource, rc *redis.Client, ttl time.Duration) *StatsController {
	return &StatsController{source: source, rc: rc, ttl: ttl}
}

// GetStats returns aggregate statistics for the blog.
func (s *StatsController) GetStats(ctx *gin.Context) {
	c := ctx.Request.Context()

	if b, ok := utils.CacheGetBytes(c, s.rc, statsCacheKey); ok {
		var cached store.SiteStats
		if err := json.Unmarshal(b, &cached); err == nil {
			utils.Success(ctx, cached)
			return
		}
	}

	stats, err := s.source.Stats(c)
	if err != nil {
		utils.Sugar.Errorw("load stats failed", "error", err)
		utils.Error(ctx, http.StatusInternalServerError, 50010, "failed to load stats")
		return
	}
	utils.CacheSetJSON(c, s.rc, statsCacheKey, stats, s.ttl)
	utils.Success(ctx, stats)
}
