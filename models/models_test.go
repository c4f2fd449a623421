package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPageViewDay(t *testing.T) {
	in := time.Date(2024, 3, 9, 23, 59, 58, 123, time.Local)
	got := PageViewDay(in)

	assert.Equal(t, time.Date(2024, 3, 9, 0, 0, 0, 0, time.Local), got)
	assert.Equal(t, got, PageViewDay(got))
}
