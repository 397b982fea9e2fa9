package tui

import "time"

const (
	// Timeouts and Intervals
	StatusPollInterval = time.Second
	RequestTimeout     = 3 * time.Second

	// Layout Offsets and Padding
	HeaderWidthOffset      = 2
	ProgressBarWidthOffset = 4
	DefaultPaddingX        = 1
	DefaultPaddingY        = 0
	MinProgressBarWidth    = 10
	MaxProgressBarWidth    = 60

	// Title truncation
	MinTitleWidth = 20
)
