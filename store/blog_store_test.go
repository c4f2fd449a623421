package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/sensive/blog/models"
)

/* ──────────────────────────────── helpers ──────────────────────────────── */

func newMockStore(t *testing.T) (*BlogStore, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	gdb, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	return NewBlogStore(gdb), mock
}

var published = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

func postRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "title", "text", "slug", "image", "published_at", "author_id", "likes_amount",
	}).
		AddRow(1, "Go generics", "Type parameters arrived", "go-generics", "posts/go.png", published, 10, 7).
		AddRow(2, "Gin tips", "Middlewares everywhere", "gin-tips", "", published.Add(-time.Hour), 11, 3)
}

func expectListRelations(mock sqlmock.Sqlmock) {
	mock.ExpectQuery("FROM `users`").
		WillReturnRows(sqlmock.NewRows([]string{"id", "username"}).
			AddRow(10, "alice").
			AddRow(11, "bob"))
	mock.ExpectQuery("FROM `tags` JOIN post_tags").
		WillReturnRows(sqlmock.NewRows([]string{"post_id", "id", "title", "posts_amount"}).
			AddRow(1, 100, "go", 12).
			AddRow(1, 101, "programming", 30).
			AddRow(2, 102, "web", 4))
	mock.ExpectQuery("FROM `comments`").
		WillReturnRows(sqlmock.NewRows([]string{"post_id", "amount"}).
			AddRow(1, 5))
}

/* ──────────────────────────────── list queries ──────────────────────────────── */

func TestMostPopularPosts(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("FROM `posts` LEFT JOIN post_likes").WillReturnRows(postRows())
	expectListRelations(mock)

	posts, err := s.MostPopularPosts(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, posts, 2)

	first := posts[0]
	assert.Equal(t, "go-generics", first.Slug)
	assert.Equal(t, int64(7), first.LikesAmount)
	assert.Equal(t, "alice", first.Author.Username)
	assert.Equal(t, int64(5), first.CommentsAmount)
	require.Len(t, first.Tags, 2)
	assert.Equal(t, "go", first.Tags[0].Title)
	assert.Equal(t, int64(12), first.Tags[0].PostsAmount)

	second := posts[1]
	assert.Equal(t, "bob", second.Author.Username)
	assert.Equal(t, int64(0), second.CommentsAmount)
	require.Len(t, second.Tags, 1)
	assert.Equal(t, "web", second.Tags[0].Title)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMostPopularPostsZeroLimit(t *testing.T) {
	s, mock := newMockStore(t)

	posts, err := s.MostPopularPosts(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, posts)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMostPopularPostsQueryError(t *testing.T) {
	s, mock := newMockStore(t)
	boom := errors.New("connection reset")

	mock.ExpectQuery("FROM `posts`").WillReturnError(boom)

	_, err := s.MostPopularPosts(context.Background(), 5)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMostFreshPosts(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("FROM `posts` ORDER BY posts.published_at DESC").WillReturnRows(postRows())
	expectListRelations(mock)

	posts, err := s.MostFreshPosts(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, posts, 2)
	assert.Equal(t, "gin-tips", posts[1].Slug)
	assert.Equal(t, int64(5), posts[0].CommentsAmount)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMostFreshPostsEmptySkipsRelations(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("FROM `posts`").
		WillReturnRows(sqlmock.NewRows([]string{"id", "title", "slug"}))

	posts, err := s.MostFreshPosts(context.Background(), 5)
	require.NoError(t, err)
	assert.Empty(t, posts)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTagRelatedPosts(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("FROM `posts` WHERE posts.id IN \\(SELECT post_id FROM `post_tags`").
		WillReturnRows(postRows())
	expectListRelations(mock)

	posts, err := s.TagRelatedPosts(context.Background(), models.Tag{ID: 100, Title: "go"}, 20)
	require.NoError(t, err)
	require.Len(t, posts, 2)
	assert.Equal(t, "alice", posts[0].Author.Username)
	require.NoError(t, mock.ExpectationsWereMet())
}

/* ──────────────────────────────── post detail ──────────────────────────────── */

func TestPostWithRelatedItems(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("FROM `posts` LEFT JOIN post_likes").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "title", "text", "slug", "image", "published_at", "author_id", "likes_amount",
		}).AddRow(1, "Go generics", "Type parameters arrived", "go-generics", "", published, 10, 7))
	mock.ExpectQuery("FROM `comments` WHERE post_id = ").
		WillReturnRows(sqlmock.NewRows([]string{"id", "post_id", "author_id", "text", "published_at"}).
			AddRow(50, 1, 11, "Nice one", published.Add(time.Hour)).
			AddRow(51, 1, 10, "Thanks!", published.Add(2*time.Hour)))
	mock.ExpectQuery("FROM `users`").
		WillReturnRows(sqlmock.NewRows([]string{"id", "username"}).
			AddRow(10, "alice").
			AddRow(11, "bob"))
	mock.ExpectQuery("FROM `tags` JOIN post_tags").
		WillReturnRows(sqlmock.NewRows([]string{"post_id", "id", "title", "posts_amount"}).
			AddRow(1, 100, "go", 12))

	post, err := s.PostWithRelatedItems(context.Background(), "go-generics")
	require.NoError(t, err)

	assert.Equal(t, "Go generics", post.Title)
	assert.Equal(t, int64(7), post.LikesAmount)
	assert.Equal(t, "alice", post.Author.Username)
	require.Len(t, post.Comments, 2)
	assert.Equal(t, "bob", post.Comments[0].Author.Username)
	assert.Equal(t, "alice", post.Comments[1].Author.Username)
	require.Len(t, post.Tags, 1)
	assert.Equal(t, int64(12), post.Tags[0].PostsAmount)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostWithRelatedItemsNotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("FROM `posts`").
		WillReturnRows(sqlmock.NewRows([]string{"id", "title", "slug"}))

	post, err := s.PostWithRelatedItems(context.Background(), "missing")
	assert.Nil(t, post)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

/* ──────────────────────────────── tags ──────────────────────────────── */

func TestPopularTags(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("FROM `tags` LEFT JOIN post_tags").
		WillReturnRows(sqlmock.NewRows([]string{"id", "title", "posts_amount"}).
			AddRow(101, "programming", 30).
			AddRow(100, "go", 12))

	tags, err := s.PopularTags(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, tags, 2)
	assert.Equal(t, "programming", tags[0].Title)
	assert.Equal(t, int64(30), tags[0].PostsAmount)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTagByTitle(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("FROM `tags` WHERE title = ").
		WillReturnRows(sqlmock.NewRows([]string{"id", "title"}).AddRow(100, "go"))

	tag, err := s.TagByTitle(context.Background(), "go")
	require.NoError(t, err)
	assert.Equal(t, uint(100), tag.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTagByTitleNotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("FROM `tags`").
		WillReturnRows(sqlmock.NewRows([]string{"id", "title"}))

	_, err := s.TagByTitle(context.Background(), "cobol")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

/* ──────────────────────────────── writes ──────────────────────────────── */

func TestSaveFeedback(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `feedback").WillReturnResult(sqlmock.NewResult(3, 1))
	mock.ExpectCommit()

	fb := &models.Feedback{Name: "Ann", Email: "ann@example.com", Text: "Hello"}
	require.NoError(t, s.SaveFeedback(context.Background(), fb))
	assert.Equal(t, uint(3), fb.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAddPageViewsUpserts(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `page_views` .* ON DUPLICATE KEY UPDATE").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	require.NoError(t, s.AddPageViews(context.Background(), time.Now(), "/contacts", 4))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAddPageViewsIgnoresNonPositive(t *testing.T) {
	s, mock := newMockStore(t)

	require.NoError(t, s.AddPageViews(context.Background(), time.Now(), "/", 0))
	require.NoError(t, mock.ExpectationsWereMet())
}

/* ──────────────────────────────── stats ──────────────────────────────── */

func TestStats(t *testing.T) {
	s, mock := newMockStore(t)

	for _, table := range []string{"posts", "tags", "comments", "users"} {
		mock.ExpectQuery("SELECT count\\(\\*\\) FROM `" + table + "`").
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
	}
	mock.ExpectQuery("SELECT COALESCE\\(SUM\\(count\\),0\\) FROM `page_views`").
		WithArgs(models.PageViewDay(time.Now()).Format("2006-01-02")).
		WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow(42))

	st, err := s.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SiteStats{PostCount: 3, TagCount: 3, CommentCount: 3, AuthorCount: 3, DailyViews: 42}, st)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStatsCountError(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery("FROM `posts`").WillReturnError(errors.New("gone"))

	_, err := s.Stats(context.Background())
	assert.ErrorContains(t, err, "count posts")
}
