package controllers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/sensive/blog/config"
	"github.com/sensive/blog/models"
	"github.com/sensive/blog/serializers"
	"github.com/sensive/blog/utils"
)

// BlogStore is the read side the page handlers need.
type BlogStore interface {
	MostPopularPosts(ctx context.Context, limit int) ([]models.Post, error)
	MostFreshPosts(ctx context.Context, limit int) ([]models.Post, error)
	TagRelatedPosts(ctx context.Context, tag models.Tag, limit int) ([]models.Post, error)
	PostWithRelatedItems(ctx context.Context, slug string) (*models.Post, error)
	PopularTags(ctx context.Context, limit int) ([]models.Tag, error)
	TagByTitle(ctx context.Context, title string) (*models.Tag, error)
	SaveFeedback(ctx context.Context, fb *models.Feedback) error
}

// Limits are the list sizes rendered on pages.
type Limits struct {
	PopularPosts int
	FreshPosts   int
	PopularTags  int
	TagPosts     int
}

// LimitsFromConfig reads page list sizes from the application config.
func LimitsFromConfig(cfg config.AppConfig) Limits {
	return Limits{
		PopularPosts: cfg.PopularPostsLimit,
		FreshPosts:   cfg.FreshPostsLimit,
		PopularTags:  cfg.PopularTagsLimit,
		TagPosts:     cfg.TagPostsLimit,
	}
}

// BlogController renders the blog pages.
type BlogController struct {
	store  BlogStore
	limits Limits
	// notify is called in the background after feedback is saved; nil disables it
	notify func(models.Feedback) error
}

// NewBlogController creates a new BlogController instance.
func NewBlogController(store BlogStore, limits Limits) *BlogController {
	return &BlogController{store: store, limits: limits}
}

// WithFeedbackNotifier sets the function that mails saved feedback.
func (b *BlogController) WithFeedbackNotifier(fn func(models.Feedback) error) *BlogController {
	b.notify = fn
	return b
}

// Index renders the home page.
func (b *BlogController) Index(ctx *gin.Context) {
	c := ctx.Request.Context()

	popular, err := b.store.MostPopularPosts(c, b.limits.PopularPosts)
	if err != nil {
		b.renderError(ctx, err)
		return
	}
	fresh, err := b.store.MostFreshPosts(c, b.limits.FreshPosts)
	if err != nil {
		b.renderError(ctx, err)
		return
	}
	tags, err := b.store.PopularTags(c, b.limits.PopularTags)
	if err != nil {
		b.renderError(ctx, err)
		return
	}

	ctx.HTML(http.StatusOK, "index.html", gin.H{
		"most_popular_posts": serializers.SerializePosts(popular),
		"page_posts":         serializers.SerializePosts(fresh),
		"popular_tags":       serializers.SerializeTags(tags),
	})
}

// PostDetail renders a single post with its comments.
func (b *BlogController) PostDetail(ctx *gin.Context) {
	c := ctx.Request.Context()

	post, err := b.store.PostWithRelatedItems(c, ctx.Param("slug"))
	if err != nil {
		b.renderError(ctx, err)
		return
	}
	tags, err := b.store.PopularTags(c, b.limits.PopularTags)
	if err != nil {
		b.renderError(ctx, err)
		return
	}
	popular, err := b.store.MostPopularPosts(c, b.limits.PopularPosts)
	if err != nil {
		b.renderError(ctx, err)
		return
	}

	ctx.HTML(http.StatusOK, "post-details.html", gin.H{
		"post":               serializers.SerializePostDetails(*post),
		"popular_tags":       serializers.SerializeTags(tags),
		"most_popular_posts": serializers.SerializePosts(popular),
	})
}

// TagFilter renders the posts carrying one tag.
func (b *BlogController) TagFilter(ctx *gin.Context) {
	c := ctx.Request.Context()

	tag, err := b.store.TagByTitle(c, ctx.Param("tag_title"))
	if err != nil {
		b.renderError(ctx, err)
		return
	}
	tags, err := b.store.PopularTags(c, b.limits.PopularTags)
	if err != nil {
		b.renderError(ctx, err)
		return
	}
	popular, err := b.store.MostPopularPosts(c, b.limits.PopularPosts)
	if err != nil {
		b.renderError(ctx, err)
		return
	}
	related, err := b.store.TagRelatedPosts(c, *tag, b.limits.TagPosts)
	if err != nil {
		b.renderError(ctx, err)
		return
	}

	ctx.HTML(http.StatusOK, "posts-list.html", gin.H{
		"tag":                tag.Title,
		"popular_tags":       serializers.SerializeTags(tags),
		"posts":              serializers.SerializePosts(related),
		"most_popular_posts": serializers.SerializePosts(popular),
	})
}

// Contacts renders the contacts page.
func (b *BlogController) Contacts(ctx *gin.Context) {
	ctx.HTML(http.StatusOK, "contacts.html", gin.H{})
}

const (
	maxFeedbackName = 100
	maxFeedbackText = 2000
)

type feedbackForm struct {
	Name  string `form:"name" binding:"required,max=100"`
	Email string `form:"email" binding:"required,email,max=254"`
	Text  string `form:"text" binding:"required,max=2000"`
}

// SubmitFeedback stores a contacts form message and notifies the owner.
func (b *BlogController) SubmitFeedback(ctx *gin.Context) {
	var form feedbackForm
	if err := ctx.ShouldBind(&form); err != nil {
		ctx.HTML(http.StatusBadRequest, "contacts.html", gin.H{
			"feedback_error": "Please fill in your name, a valid email and a message.",
		})
		return
	}

	fb := models.Feedback{
		Name:  strings.TrimSpace(utils.SanitizeText(form.Name)),
		Email: strings.TrimSpace(form.Email),
		Text:  strings.TrimSpace(utils.SanitizeText(form.Text)),
		IP:    ctx.ClientIP(),
	}
	if fb.Name == "" || fb.Text == "" {
		ctx.HTML(http.StatusBadRequest, "contacts.html", gin.H{
			"feedback_error": "Message cannot be empty.",
		})
		return
	}
	if utf8.RuneCountInString(fb.Name) > maxFeedbackName || utf8.RuneCountInString(fb.Text) > maxFeedbackText {
		ctx.HTML(http.StatusBadRequest, "contacts.html", gin.H{
			"feedback_error": "Your name or message is too long.",
		})
		return
	}

	if err := b.store.SaveFeedback(ctx.Request.Context(), &fb); err != nil {
		utils.Sugar.Errorw("save feedback failed", "error", err, "request_id", ctx.GetString(utils.RequestIDKey))
		ctx.HTML(http.StatusInternalServerError, "contacts.html", gin.H{
			"feedback_error": "Could not send your message, please try again later.",
		})
		return
	}

	if b.notify != nil {
		go func(fb models.Feedback) {
			if err := b.notify(fb); err != nil {
				utils.Sugar.Warnw("feedback mail failed", "feedback_id", fb.ID, "error", err)
			}
		}(fb)
	}

	ctx.HTML(http.StatusOK, "contacts.html", gin.H{"feedback_sent": true})
}

// FeedbackRateLimited renders the contacts page for clients over the limit.
func FeedbackRateLimited(ctx *gin.Context) {
	ctx.HTML(http.StatusTooManyRequests, "contacts.html", gin.H{
		"feedback_error": "Too many messages, please wait a minute.",
	})
}

// NotFound renders the 404 page.
func NotFound(ctx *gin.Context) {
	ctx.HTML(http.StatusNotFound, "404.html", gin.H{"path": ctx.Request.URL.Path})
}

func (b *BlogController) renderError(ctx *gin.Context, err error) {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		NotFound(ctx)
		return
	}
	utils.Sugar.Errorw("render page failed",
		"path", ctx.Request.URL.Path,
		"request_id", ctx.GetString(utils.RequestIDKey),
		"error", err,
	)
	_ = ctx.Error(err)
	ctx.HTML(http.StatusInternalServerError, "500.html", gin.H{})
}
