package db

import "time"

// Preference is one persisted client setting.
type Preference struct {
	Name  string `gorm:"primaryKey"`
	Value string
}

type LogType string

const (
	LogSuccess LogType = "success"
	LogError   LogType = "error"
)

// LogEntry records one send attempt or received message on the dashboard.
type LogEntry struct {
	ID        string `gorm:"primaryKey"`
	From      string `gorm:"column:sender"`
	Message   string
	Type      LogType
	CreatedAt time.Time `gorm:"index"`
}
