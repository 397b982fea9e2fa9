package types

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Status is the desktop app's state for one download. The numeric values
// are the ones it puts on the wire.
type Status int

const (
	StatusPending     Status = 0 // displayed as Queued
	StatusQueued      Status = 1
	StatusExtracting  Status = 2
	StatusDownloading Status = 3
	StatusCompleted   Status = 4
	StatusFailed      Status = 5
	StatusPaused      Status = 6
	StatusCanceled    Status = 7
	StatusDuplicate   Status = 8
)

var statusNames = []string{"Queued", "Queued", "Extracting", "Downloading", "Completed", "Failed", "Paused", "Canceled", "Duplicate"}

func (s Status) String() string {
	if s >= 0 && int(s) < len(statusNames) {
		return statusNames[s]
	}
	return "Processing"
}

// IsActive is true for the states that keep the "active" badge lit.
func (s Status) IsActive() bool {
	return s == StatusPending || s == StatusQueued || s == StatusExtracting || s == StatusDownloading
}

// ShowsProgress is true while a progress bar is meaningful.
func (s Status) ShowsProgress() bool {
	return s == StatusExtracting || s == StatusDownloading
}

// UnmarshalJSON accepts the numeric wire value or a status name.
func (s *Status) UnmarshalJSON(data []byte) error {
	var n int
	if err := json.Unmarshal(data, &n); err == nil {
		*s = Status(n)
		return nil
	}
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return fmt.Errorf("status must be a number or a name: %s", string(data))
	}
	if n, err := strconv.Atoi(name); err == nil {
		*s = Status(n)
		return nil
	}
	for i, candidate := range statusNames {
		if i == 0 {
			continue
		}
		if strings.EqualFold(candidate, name) {
			*s = Status(i)
			return nil
		}
	}
	return fmt.Errorf("unknown status %q", name)
}

// RequestInfo is the part of the original request the desktop app echoes back.
type RequestInfo struct {
	URL string `json:"url"`
}

// DownloadItem is one tracked download as last reported by the desktop app.
type DownloadItem struct {
	ID        string      `json:"id"`
	Title     string      `json:"title,omitempty"`
	Status    Status      `json:"status"`
	Progress  float64     `json:"progress"`            // Fraction 0-1
	TotalSize string      `json:"totalSize,omitempty"` // Display string, e.g. "120.4 MB"
	Speed     string      `json:"speed,omitempty"`     // Display string, e.g. "2.1 MB/s"
	Request   RequestInfo `json:"request"`
}

// DisplayTitle falls back to the request URL while the title is unknown.
func (d DownloadItem) DisplayTitle() string {
	if d.Title != "" {
		return d.Title
	}
	if d.Request.URL != "" {
		return d.Request.URL
	}
	return "Downloading..."
}

// IntentOptions are the optional quality hints a page-side producer adds.
type IntentOptions struct {
	IsAudioOnly      bool   `json:"isAudioOnly,omitempty"`
	PreferredQuality string `json:"preferredQuality,omitempty"`
}

// DownloadIntent is a request to download mediaURL, seen on pageURL.
// UserAgent is the producing browser's, when known.
type DownloadIntent struct {
	MediaURL  string        `json:"url"`
	PageURL   string        `json:"pageUrl"`
	Options   IntentOptions `json:"options"`
	UserAgent string        `json:"userAgent,omitempty"`
}

// CookieBatch is the joined cookie header for one domain at send time.
type CookieBatch struct {
	Domain  string
	Cookies string
}
