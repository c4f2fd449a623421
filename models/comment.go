package models

import "time"

// Comment represents a reply to a post.
type Comment struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	PostID      uint      `gorm:"index;not null" json:"post_id"`
	AuthorID    uint      `gorm:"index;not null" json:"author_id"`
	Text        string    `gorm:"type:text;not null" json:"text"`
	PublishedAt time.Time `gorm:"index;not null" json:"published_at"`
	Author      User      `gorm:"foreignKey:AuthorID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"author"`
}
