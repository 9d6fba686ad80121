package models

import "time"

// TelegramConfig holds Telegram notification configuration.
type TelegramConfig struct {
	BotToken string
	ChatID   string
}

// TelegramMessage holds the data for a run notification.
type TelegramMessage struct {
	Success     bool
	Pipeline    string
	Database    string
	Bucket      string
	ArchiveName string
	ArchiveSize int64
	StartTime   time.Time
	Duration    time.Duration

	// Error info (if failed).
	ErrorMessage string
	FailedStep   string
}
