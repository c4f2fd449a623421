package routes

import (
	"html/template"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/sensive/blog/config"
	"github.com/sensive/blog/controllers"
	"github.com/sensive/blog/middleware"
	"github.com/sensive/blog/store"
	"github.com/sensive/blog/utils"
)

// Deps are the long-lived objects the router hands to handlers.
type Deps struct {
	Store     *store.BlogStore
	Redis     *redis.Client
	PageViews *utils.PageViewCounter
	// Templates overrides TemplatesGlob, used by tests
	Templates *template.Template
}

// TemplateFuncs are available in every page template.
func TemplateFuncs() template.FuncMap {
	return template.FuncMap{
		"safeHTML": utils.SafeHTML,
		"date": func(t time.Time) string {
			return t.Format("January 2, 2006")
		},
	}
}

// SetupRouter wires routes, middlewares, and controllers.
func SetupRouter(deps Deps) *gin.Engine {
	cfg := config.Get()
	switch strings.ToLower(cfg.GinMode) {
	case "debug":
		gin.SetMode(gin.DebugMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(middleware.RequestID())
	// Access log goes to its own rolling file
	gl, err := utils.NewRollingFileLogger(cfg.GinPath, cfg.LogLevel, cfg.LogMaxSizeMB, cfg.LogMaxBackups, cfg.LogMaxAgeDays, cfg.LogCompress)
	if err == nil {
		r.Use(utils.Ginzap(gl, time.RFC3339, true))
		r.Use(utils.RecoveryWithZap(gl, false))
	} else {
		r.Use(utils.Ginzap(utils.Logger, time.RFC3339, true))
		r.Use(utils.RecoveryWithZap(utils.Logger, true))
	}

	metrics := middleware.NewMetrics()
	r.Use(metrics.Middleware())
	r.Use(middleware.PageViewRecorder(deps.PageViews))

	r.SetFuncMap(TemplateFuncs())
	if deps.Templates != nil {
		r.SetHTMLTemplate(deps.Templates)
	} else {
		r.LoadHTMLGlob(cfg.TemplatesGlob)
	}
	if cfg.StaticRoot != "" {
		r.Static("/static", cfg.StaticRoot)
	}
	if cfg.MediaRoot != "" && strings.HasPrefix(cfg.MediaURL, "/") {
		r.Static(strings.TrimSuffix(cfg.MediaURL, "/"), cfg.MediaRoot)
	}

	blog := controllers.NewBlogController(deps.Store, controllers.LimitsFromConfig(cfg))
	if utils.MailConfigured(cfg) && cfg.FeedbackRecipient != "" {
		blog.WithFeedbackNotifier(utils.NotifyFeedback)
	}
	feedbackLimit := middleware.RateLimit(middleware.NewIPRateLimiter(cfg.FeedbackPerMinute), controllers.FeedbackRateLimited)

	r.GET("/", blog.Index)
	r.GET("/post/:slug", blog.PostDetail)
	r.GET("/tag/:tag_title", blog.TagFilter)
	r.GET("/contacts", blog.Contacts)
	r.POST("/contacts", feedbackLimit, blog.SubmitFeedback)

	r.GET("/health", func(ctx *gin.Context) {
		utils.Success(ctx, gin.H{"status": "ok"})
	})
	r.GET("/metrics", metrics.Handler())

	corsCfg := cors.Config{
		AllowMethods:  []string{"GET", "OPTIONS"},
		AllowHeaders:  []string{"Content-Type", middleware.RequestIDHeader},
		ExposeHeaders: []string{"Content-Length", middleware.RequestIDHeader},
		MaxAge:        12 * time.Hour,
	}
	if len(cfg.AllowedOrigins) == 0 || (len(cfg.AllowedOrigins) == 1 && cfg.AllowedOrigins[0] == "*") {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = cfg.AllowedOrigins
	}

	stats := controllers.NewStatsController(deps.Store, deps.Redis, time.Duration(cfg.StatsCacheSeconds)*time.Second)
	api := r.Group("/api")
	api.Use(cors.New(corsCfg))
	api.GET("/stats", stats.GetStats)
	// preflight requests need a matching route for the group middleware to run
	api.OPTIONS("/*path", func(ctx *gin.Context) {})

	r.NoRoute(controllers.NotFound)

	return r
}
