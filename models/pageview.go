package models

import "time"

// PageView counts rendered pages per local day and request path.
type PageView struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Date      time.Time `gorm:"uniqueIndex:idx_pv_date_path;type:date;not null" json:"date"`
	Path      string    `gorm:"index;uniqueIndex:idx_pv_date_path;size:255;not null" json:"path"`
	Count     int64     `gorm:"not null;default:0" json:"count"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PageViewDay truncates t to local midnight, the granularity of PageView.Date.
func PageViewDay(t time.Time) time.Time {
	t = t.In(time.Local)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
