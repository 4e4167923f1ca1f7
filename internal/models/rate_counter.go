package models

import "time"

// RateCounter is a fixed-window request counter shared by every API replica.
type RateCounter struct {
	Key       string    `gorm:"primaryKey;size:256" json:"key"`
	Count     int       `gorm:"not null;default:0" json:"count"`
	WindowEnd time.Time `gorm:"not null;index" json:"window_end"`
	UpdatedAt time.Time `json:"updated_at"`
}
