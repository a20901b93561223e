// Package model defines shared data structures.
package model

import "time"

// Config defines practice settings.
type Config struct {
	PromptID   string
	File       string
	Watch      bool
	Recognizer string
	FoldCase   bool
	Hints      bool
}

// HistoryConfig defines filters for history output.
type HistoryConfig struct {
	PromptID string
	Since    *time.Time
	Last     int
}

// Prompt is a stored practice text.
type Prompt struct {
	ID          string
	Text        string
	SaveCount   int
	AccessCount int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// PracticeRecord captures a completed practice session.
type PracticeRecord struct {
	ID         string
	PromptID   string
	StartedAt  time.Time
	EndedAt    time.Time
	Sentences  int
	Words      int
	Skipped    int
	PeakLevel  float64
	DurationMs int64
}

// PromptAggregate summarizes the history of one prompt for reporting.
type PromptAggregate struct {
	PromptID   string
	Sessions   int
	Words      int
	Skipped    int
	BestMs     int64
	LastEnded  time.Time
	DurationMs int64
}
