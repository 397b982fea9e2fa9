package core

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/moderndownloader/bridge/internal/engine/events"
	"github.com/moderndownloader/bridge/internal/engine/types"
	"github.com/moderndownloader/bridge/internal/transport"
)

// RemoteBridgeService implements BridgeService against the intake server
// of a bridge running in another process.
type RemoteBridgeService struct {
	BaseURL   string
	Token     string
	Client    *http.Client
	SSEClient *http.Client
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewRemoteBridgeService creates a client for the intake at baseURL.
func NewRemoteBridgeService(baseURL string, token string) *RemoteBridgeService {
	ctx, cancel := context.WithCancel(context.Background())
	return &RemoteBridgeService{
		BaseURL:   strings.TrimRight(baseURL, "/"),
		Token:     token,
		Client:    &http.Client{Timeout: 30 * time.Second},
		SSEClient: &http.Client{},
		ctx:       ctx,
		cancel:    cancel,
	}
}

// APIError is a non-2xx intake response.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error %d: %s", e.StatusCode, e.Body)
}

func (s *RemoteBridgeService) doRequest(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewBuffer(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.BaseURL+path, bodyReader)
	if err != nil {
		return nil, err
	}

	if s.Token != "" {
		req.Header.Set("Authorization", "Bearer "+s.Token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 400 {
		defer func() { _ = resp.Body.Close() }()
		// Limit error body read to 1KB
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(bodyBytes))}
		if resp.StatusCode == http.StatusServiceUnavailable {
			return nil, fmt.Errorf("%w: %s", transport.ErrNotConnected, apiErr.Body)
		}
		return nil, apiErr
	}

	return resp, nil
}

func (s *RemoteBridgeService) getJSON(ctx context.Context, path string, dst any) error {
	resp, err := s.doRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	return json.NewDecoder(resp.Body).Decode(dst)
}

// SendIntent posts the intent to /intent.
func (s *RemoteBridgeService) SendIntent(ctx context.Context, intent types.DownloadIntent) (string, error) {
	resp, err := s.doRequest(ctx, http.MethodPost, "/intent", intent)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	var result map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}
	return result["id"], nil
}

// Recent fetches the mirrored downloads.
func (s *RemoteBridgeService) Recent(ctx context.Context) ([]types.DownloadItem, error) {
	var items []types.DownloadItem
	if err := s.getJSON(ctx, "/recent", &items); err != nil {
		return nil, err
	}
	return items, nil
}

// Status fetches the connection snapshot.
func (s *RemoteBridgeService) Status(ctx context.Context) (*Status, error) {
	var st Status
	if err := s.getJSON(ctx, "/status", &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// Shutdown stops any running event streams.
func (s *RemoteBridgeService) Shutdown() error {
	s.cancel()
	return nil
}

// StreamEvents follows /events, reconnecting with backoff until ctx is
// done or the service is shut down.
func (s *RemoteBridgeService) StreamEvents(ctx context.Context) (<-chan any, func(), error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)
	ch := make(chan any, 100)
	go s.streamWithReconnect(ctx, ch)
	return ch, cancel, nil
}

func (s *RemoteBridgeService) streamWithReconnect(ctx context.Context, ch chan any) {
	defer close(ch)
	backoff := 1 * time.Second
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ctx.Done():
			return
		default:
		}

		err := s.connectSSE(ctx, ch)
		if err == nil || errors.Is(err, context.Canceled) {
			return
		}
		select {
		case <-s.ctx.Done():
			return
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}

		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}

func (s *RemoteBridgeService) connectSSE(ctx context.Context, ch chan any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.BaseURL+"/events", nil)
	if err != nil {
		return err
	}

	if s.Token != "" {
		req.Header.Set("Authorization", "Bearer "+s.Token)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := s.SSEClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to connect to event stream: %s", resp.Status)
	}

	reader := bufio.NewReader(resp.Body)
	for {
		eventType, data, err := readSSEEvent(reader)
		if err != nil {
			return err
		}
		msg, ok := decodeStreamEvent(eventType, data)
		if !ok {
			continue
		}
		select {
		case ch <- msg:
		default:
			// Drop rather than stall the reader
		}
	}
}

// readSSEEvent reads lines up to the blank line that ends one event.
func readSSEEvent(reader *bufio.Reader) (string, []byte, error) {
	eventType := ""
	var dataLines []string
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return "", nil, err
		}
		line = strings.TrimRight(line, "\r\n")
		switch {
		case line == "":
			if eventType == "" && len(dataLines) == 0 {
				continue
			}
			return eventType, []byte(strings.Join(dataLines, "\n")), nil
		case strings.HasPrefix(line, ":"):
			// heartbeat
		case strings.HasPrefix(line, "event:"):
			eventType = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			dataLines = append(dataLines, strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		}
	}
}

// Event names on the /events stream.
const (
	StreamEventBadge      = "badge"
	StreamEventRecent     = "recent"
	StreamEventPreference = "preference"
)

// StreamEventName returns the SSE event name for a stream message.
func StreamEventName(msg any) string {
	switch msg.(type) {
	case events.BadgeChangedMsg:
		return StreamEventBadge
	case events.RecentChangedMsg:
		return StreamEventRecent
	case events.PreferenceChangedMsg:
		return StreamEventPreference
	}
	return ""
}

func decodeStreamEvent(eventType string, data []byte) (any, bool) {
	switch eventType {
	case StreamEventBadge:
		var m events.BadgeChangedMsg
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, false
		}
		return m, true
	case StreamEventRecent:
		var m events.RecentChangedMsg
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, false
		}
		return m, true
	case StreamEventPreference:
		var m events.PreferenceChangedMsg
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, false
		}
		return m, true
	}
	return nil, false
}
