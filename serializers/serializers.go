// Package serializers turns blog models into the plain mappings the page templates consume.
package serializers

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/sensive/blog/config"
	"github.com/sensive/blog/models"
)

// TeaserLength is the number of runes of post text shown in listings.
const TeaserLength = 200

// SerializePost builds the listing card of a post.
func SerializePost(post models.Post) gin.H {
	firstTagTitle := ""
	if len(post.Tags) > 0 {
		firstTagTitle = post.Tags[0].Title
	}
	return gin.H{
		"title":           post.Title,
		"teaser_text":     Truncate(post.Text, TeaserLength),
		"author":          post.Author.Username,
		"comments_amount": post.CommentsAmount,
		"image_url":       imageURL(post),
		"published_at":    post.PublishedAt,
		"slug":            post.Slug,
		"tags":            SerializeTags(post.Tags),
		"first_tag_title": firstTagTitle,
	}
}

// SerializePostDetails builds the full post page payload including comments.
func SerializePostDetails(post models.Post) gin.H {
	comments := make([]gin.H, 0, len(post.Comments))
	for _, c := range post.Comments {
		comments = append(comments, SerializeComment(c))
	}
	return gin.H{
		"title":        post.Title,
		"text":         post.Text,
		"author":       post.Author.Username,
		"comments":     comments,
		"likes_amount": post.LikesAmount,
		"image_url":    imageURL(post),
		"published_at": post.PublishedAt,
		"slug":         post.Slug,
		"tags":         SerializeTags(post.Tags),
	}
}

func SerializeComment(comment models.Comment) gin.H {
	return gin.H{
		"text":         comment.Text,
		"published_at": comment.PublishedAt,
		"author":       comment.Author.Username,
	}
}

func SerializeTag(tag models.Tag) gin.H {
	return gin.H{
		"title":          tag.Title,
		"posts_with_tag": tag.PostsAmount,
	}
}

// SerializePosts maps SerializePost over posts.
func SerializePosts(posts []models.Post) []gin.H {
	out := make([]gin.H, 0, len(posts))
	for _, p := range posts {
		out = append(out, SerializePost(p))
	}
	return out
}

// SerializeTags maps SerializeTag over tags.
func SerializeTags(tags []models.Tag) []gin.H {
	out := make([]gin.H, 0, len(tags))
	for _, t := range tags {
		out = append(out, SerializeTag(t))
	}
	return out
}

// Truncate returns at most n runes of s.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}

// imageURL is nil for posts without an image so templates can test it directly.
func imageURL(post models.Post) any {
	if post.Image == "" {
		return nil
	}
	if strings.HasPrefix(post.Image, "http://") || strings.HasPrefix(post.Image, "https://") {
		return post.Image
	}
	prefix := config.Get().MediaURL
	return strings.TrimSuffix(prefix, "/") + "/" + strings.TrimPrefix(post.Image, "/")
}
