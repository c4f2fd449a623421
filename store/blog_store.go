// Package store holds the blog's read queries. Every list query attaches its
// relations with one batched query per relation, never one per post.
package store

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/sensive/blog/models"
	"github.com/sensive/blog/utils"
)

const likesAmountSelect = "posts.*, COUNT(DISTINCT post_likes.user_id) AS likes_amount"

// BlogStore runs blog queries against a gorm connection.
type BlogStore struct {
	db *gorm.DB
}

// NewBlogStore creates a new BlogStore instance.
func NewBlogStore(db *gorm.DB) *BlogStore {
	return &BlogStore{db: db}
}

// SiteStats are the aggregate totals served by the stats endpoint.
type SiteStats struct {
	PostCount    int64 `json:"post_count"`
	TagCount     int64 `json:"tag_count"`
	CommentCount int64 `json:"comment_count"`
	AuthorCount  int64 `json:"author_count"`
	DailyViews   int64 `json:"daily_views"`
}

// MostPopularPosts returns the most liked posts with authors, tags and comment counts.
func (s *BlogStore) MostPopularPosts(ctx context.Context, limit int) ([]models.Post, error) {
	if limit <= 0 {
		return []models.Post{}, nil
	}
	var posts []models.Post
	err := s.db.WithContext(ctx).
		Model(&models.Post{}).
		Select(likesAmountSelect).
		Joins("LEFT JOIN post_likes ON post_likes.post_id = posts.id").
		Group("posts.id").
		Order("likes_amount DESC").
		Order("posts.id DESC").
		Limit(limit).
		Find(&posts).Error
	if err != nil {
		return nil, fmt.Errorf("query popular posts: %w", err)
	}
	if err := s.attachListRelations(ctx, posts); err != nil {
		return nil, err
	}
	return posts, nil
}

// MostFreshPosts returns the latest published posts with authors, tags and comment counts.
func (s *BlogStore) MostFreshPosts(ctx context.Context, limit int) ([]models.Post, error) {
	if limit <= 0 {
		return []models.Post{}, nil
	}
	var posts []models.Post
	err := s.db.WithContext(ctx).
		Model(&models.Post{}).
		Select("posts.*").
		Order("posts.published_at DESC").
		Limit(limit).
		Find(&posts).Error
	if err != nil {
		return nil, fmt.Errorf("query fresh posts: %w", err)
	}
	if err := s.attachListRelations(ctx, posts); err != nil {
		return nil, err
	}
	return posts, nil
}

// TagRelatedPosts returns the newest posts carrying tag.
func (s *BlogStore) TagRelatedPosts(ctx context.Context, tag models.Tag, limit int) ([]models.Post, error) {
	if limit <= 0 {
		return []models.Post{}, nil
	}
	tagged := s.db.Table("post_tags").Select("post_id").Where("tag_id = ?", tag.ID)

	var posts []models.Post
	err := s.db.WithContext(ctx).
		Model(&models.Post{}).
		Select("posts.*").
		Where("posts.id IN (?)", tagged).
		Order("posts.published_at DESC").
		Limit(limit).
		Find(&posts).Error
	if err != nil {
		return nil, fmt.Errorf("query posts for tag %q: %w", tag.Title, err)
	}
	if err := s.attachListRelations(ctx, posts); err != nil {
		return nil, err
	}
	return posts, nil
}

// PostWithRelatedItems loads one post by slug with its likes count, author,
// tags and comments. Unknown slugs yield gorm.ErrRecordNotFound.
func (s *BlogStore) PostWithRelatedItems(ctx context.Context, slug string) (*models.Post, error) {
	var post models.Post
	err := s.db.WithContext(ctx).
		Model(&models.Post{}).
		Select(likesAmountSelect).
		Joins("LEFT JOIN post_likes ON post_likes.post_id = posts.id").
		Where("posts.slug = ?", slug).
		Group("posts.id").
		Take(&post).Error
	if err != nil {
		return nil, fmt.Errorf("load post %q: %w", slug, err)
	}

	var comments []models.Comment
	if err := s.db.WithContext(ctx).
		Where("post_id = ?", post.ID).
		Order("published_at").
		Order("id").
		Find(&comments).Error; err != nil {
		return nil, fmt.Errorf("load comments of post %d: %w", post.ID, err)
	}

	// Post author and comment authors come from one query
	authorIDs := []uint{post.AuthorID}
	for _, c := range comments {
		authorIDs = append(authorIDs, c.AuthorID)
	}
	users, err := s.usersByID(ctx, authorIDs)
	if err != nil {
		return nil, err
	}
	post.Author = users[post.AuthorID]
	for i := range comments {
		comments[i].Author = users[comments[i].AuthorID]
	}
	post.Comments = comments

	tags, err := s.tagsByPost(ctx, []uint{post.ID})
	if err != nil {
		return nil, err
	}
	post.Tags = tags[post.ID]
	return &post, nil
}

// PopularTags returns the tags with the most posts.
func (s *BlogStore) PopularTags(ctx context.Context, limit int) ([]models.Tag, error) {
	if limit <= 0 {
		return []models.Tag{}, nil
	}
	var tags []models.Tag
	err := s.db.WithContext(ctx).
		Model(&models.Tag{}).
		Select("tags.*, COUNT(post_tags.post_id) AS posts_amount").
		Joins("LEFT JOIN post_tags ON post_tags.tag_id = tags.id").
		Group("tags.id").
		Order("posts_amount DESC").
		Order("tags.title").
		Limit(limit).
		Find(&tags).Error
	if err != nil {
		return nil, fmt.Errorf("query popular tags: %w", err)
	}
	return tags, nil
}

// TagByTitle looks a tag up by its unique title. Unknown titles yield gorm.ErrRecordNotFound.
func (s *BlogStore) TagByTitle(ctx context.Context, title string) (*models.Tag, error) {
	var tag models.Tag
	if err := s.db.WithContext(ctx).Where("title = ?", title).Take(&tag).Error; err != nil {
		return nil, fmt.Errorf("load tag %q: %w", title, err)
	}
	return &tag, nil
}

// Stats returns site totals and today's recorded page views.
func (s *BlogStore) Stats(ctx context.Context) (SiteStats, error) {
	var st SiteStats
	db := s.db.WithContext(ctx)

	if err := db.Model(&models.Post{}).Count(&st.PostCount).Error; err != nil {
		return st, fmt.Errorf("count posts: %w", err)
	}
	if err := db.Model(&models.Tag{}).Count(&st.TagCount).Error; err != nil {
		return st, fmt.Errorf("count tags: %w", err)
	}
	if err := db.Model(&models.Comment{}).Count(&st.CommentCount).Error; err != nil {
		return st, fmt.Errorf("count comments: %w", err)
	}
	if err := db.Model(&models.User{}).Count(&st.AuthorCount).Error; err != nil {
		return st, fmt.Errorf("count authors: %w", err)
	}
	// String date avoids timezone mismatches against the DATE column
	today := models.PageViewDay(time.Now()).Format("2006-01-02")
	if err := db.Model(&models.PageView{}).
		Where("date = ?", today).
		Select("COALESCE(SUM(count),0)").
		Scan(&st.DailyViews).Error; err != nil {
		return st, fmt.Errorf("sum page views: %w", err)
	}
	return st, nil
}

// SaveFeedback stores a contacts form submission.
func (s *BlogStore) SaveFeedback(ctx context.Context, fb *models.Feedback) error {
	if err := s.db.WithContext(ctx).Create(fb).Error; err != nil {
		return fmt.Errorf("save feedback: %w", err)
	}
	return nil
}

// AddPageViews adds n views of path on day, creating the row when missing.
func (s *BlogStore) AddPageViews(ctx context.Context, day time.Time, path string, n int64) error {
	if n <= 0 {
		return nil
	}
	now := time.Now()
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "date"}, {Name: "path"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"count":      gorm.Expr("count + ?", n),
			"updated_at": now,
		}),
	}).Create(&models.PageView{Date: models.PageViewDay(day), Path: path, Count: n}).Error
	if err != nil {
		return fmt.Errorf("add page views for %s: %w", path, err)
	}
	return nil
}

func (s *BlogStore) attachListRelations(ctx context.Context, posts []models.Post) error {
	if len(posts) == 0 {
		return nil
	}
	postIDs := make([]uint, 0, len(posts))
	authorIDs := make([]uint, 0, len(posts))
	for _, p := range posts {
		postIDs = append(postIDs, p.ID)
		authorIDs = append(authorIDs, p.AuthorID)
	}

	users, err := s.usersByID(ctx, authorIDs)
	if err != nil {
		return err
	}
	tags, err := s.tagsByPost(ctx, postIDs)
	if err != nil {
		return err
	}
	amounts, err := s.commentsAmountByPost(ctx, postIDs)
	if err != nil {
		return err
	}

	for i := range posts {
		posts[i].Author = users[posts[i].AuthorID]
		posts[i].Tags = tags[posts[i].ID]
		posts[i].CommentsAmount = amounts[posts[i].ID]
	}
	return nil
}

func (s *BlogStore) usersByID(ctx context.Context, ids []uint) (map[uint]models.User, error) {
	var users []models.User
	if err := s.db.WithContext(ctx).Find(&users, utils.Unique(ids)).Error; err != nil {
		return nil, fmt.Errorf("load authors: %w", err)
	}
	byID := make(map[uint]models.User, len(users))
	for _, u := range users {
		byID[u.ID] = u
	}
	return byID, nil
}

type postTagRow struct {
	PostID      uint
	ID          uint
	Title       string
	PostsAmount int64
}

// tagsByPost loads the tags of every post in postIDs, each tag carrying its total posts count.
func (s *BlogStore) tagsByPost(ctx context.Context, postIDs []uint) (map[uint][]models.Tag, error) {
	var rows []postTagRow
	err := s.db.WithContext(ctx).
		Table("tags").
		Select("post_tags.post_id AS post_id, tags.id AS id, tags.title AS title, " +
			"(SELECT COUNT(*) FROM post_tags AS pt WHERE pt.tag_id = tags.id) AS posts_amount").
		Joins("JOIN post_tags ON post_tags.tag_id = tags.id").
		Where("post_tags.post_id IN ?", postIDs).
		Order("tags.title").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("load tags: %w", err)
	}
	byPost := make(map[uint][]models.Tag, len(postIDs))
	for _, r := range rows {
		byPost[r.PostID] = append(byPost[r.PostID], models.Tag{ID: r.ID, Title: r.Title, PostsAmount: r.PostsAmount})
	}
	return byPost, nil
}

type commentsAmountRow struct {
	PostID uint
	Amount int64
}

func (s *BlogStore) commentsAmountByPost(ctx context.Context, postIDs []uint) (map[uint]int64, error) {
	var rows []commentsAmountRow
	err := s.db.WithContext(ctx).
		Model(&models.Comment{}).
		Select("post_id, COUNT(*) AS amount").
		Where("post_id IN ?", postIDs).
		Group("post_id").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("count comments: %w", err)
	}
	amounts := make(map[uint]int64, len(rows))
	for _, r := range rows {
		amounts[r.PostID] = r.Amount
	}
	return amounts, nil
}
