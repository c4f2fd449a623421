package models

import "time"

// Post is a published blog entry.
//
// CommentsAmount and LikesAmount are filled by aggregate queries only;
// they are never written or migrated.
type Post struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Title       string    `gorm:"size:200;not null" json:"title"`
	Text        string    `gorm:"type:text;not null" json:"text"`
	Slug        string    `gorm:"size:200;uniqueIndex;not null" json:"slug"`
	Image       string    `gorm:"size:512" json:"image"` // path relative to the media root
	PublishedAt time.Time `gorm:"index;not null" json:"published_at"`
	AuthorID    uint      `gorm:"index;not null" json:"author_id"`
	Author      User      `gorm:"foreignKey:AuthorID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"author"`
	Tags        []Tag     `gorm:"many2many:post_tags;" json:"tags"`
	Likes       []User    `gorm:"many2many:post_likes;" json:"-"`
	Comments    []Comment `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"comments"`

	CommentsAmount int64 `gorm:"->;-:migration" json:"comments_amount"`
	LikesAmount    int64 `gorm:"->;-:migration" json:"likes_amount"`
}
