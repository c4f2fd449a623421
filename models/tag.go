package models

// Tag groups posts by topic. PostsAmount is filled by aggregate queries only.
type Tag struct {
	ID    uint   `gorm:"primaryKey" json:"id"`
	Title string `gorm:"size:50;uniqueIndex;not null" json:"title"`
	Posts []Post `gorm:"many2many:post_tags;" json:"-"`

	PostsAmount int64 `gorm:"->;-:migration" json:"posts_amount"`
}
