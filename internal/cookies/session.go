package cookies

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pierrec/lz4/v4"
)

// Page is the browser's focused tab.
type Page struct {
	URL   string `json:"url"`
	Title string `json:"title"`
}

// ActivePage reports which page the user is looking at.
type ActivePage interface {
	Current(ctx context.Context) (Page, error)
}

// ErrNoActivePage means the browser has no focused tab we can see.
var ErrNoActivePage = errors.New("no active page")

// StaticPage always reports the same page.
type StaticPage Page

func (p StaticPage) Current(context.Context) (Page, error) {
	if p.URL == "" {
		return Page{}, ErrNoActivePage
	}
	return Page(p), nil
}

var mozLz4Magic = []byte("mozLz40\x00")

// DecodeMozLz4 unpacks Firefox's jsonlz4 container: an 8-byte magic, the
// little-endian uncompressed size, then one raw LZ4 block.
func DecodeMozLz4(data []byte) ([]byte, error) {
	if len(data) < len(mozLz4Magic)+4 || !bytes.Equal(data[:len(mozLz4Magic)], mozLz4Magic) {
		return nil, errors.New("not a mozlz4 file")
	}
	size := binary.LittleEndian.Uint32(data[len(mozLz4Magic):])
	if size > 256<<20 {
		return nil, fmt.Errorf("mozlz4 size %d too large", size)
	}
	out := make([]byte, size)
	n, err := lz4.UncompressBlock(data[len(mozLz4Magic)+4:], out)
	if err != nil {
		return nil, fmt.Errorf("mozlz4 block: %w", err)
	}
	return out[:n], nil
}

// EncodeMozLz4 is the inverse of DecodeMozLz4.
func EncodeMozLz4(data []byte) ([]byte, error) {
	buf := make([]byte, lz4.CompressBlockBound(len(data)))
	n, err := lz4.CompressBlock(data, buf, nil)
	if err != nil {
		return nil, fmt.Errorf("mozlz4 compress: %w", err)
	}
	if n == 0 {
		return nil, errors.New("mozlz4 compress: incompressible input")
	}
	out := make([]byte, 0, len(mozLz4Magic)+4+n)
	out = append(out, mozLz4Magic...)
	out = binary.LittleEndian.AppendUint32(out, uint32(len(data)))
	return append(out, buf[:n]...), nil
}

// FirefoxSession reads the focused tab from the profile's session store.
type FirefoxSession struct {
	ProfileDir string
}

type sessionFile struct {
	SelectedWindow int `json:"selectedWindow"`
	Windows        []struct {
		Selected int `json:"selected"`
		Tabs     []struct {
			Index   int `json:"index"`
			Entries []struct {
				URL   string `json:"url"`
				Title string `json:"title"`
			} `json:"entries"`
		} `json:"tabs"`
	} `json:"windows"`
}

// Current returns the selected tab of the selected window. Indices in the
// session file are 1-based.
func (s FirefoxSession) Current(ctx context.Context) (Page, error) {
	if err := ctx.Err(); err != nil {
		return Page{}, err
	}
	raw, err := s.read()
	if err != nil {
		return Page{}, err
	}
	return ParseSession(raw)
}

func (s FirefoxSession) read() ([]byte, error) {
	candidates := []string{
		filepath.Join(s.ProfileDir, "sessionstore-backups", "recovery.jsonlz4"),
		filepath.Join(s.ProfileDir, "sessionstore.jsonlz4"),
	}
	var lastErr error = ErrNoActivePage
	for _, path := range candidates {
		data, err := os.ReadFile(path)
		if err != nil {
			lastErr = err
			continue
		}
		return DecodeMozLz4(data)
	}
	return nil, fmt.Errorf("read session store: %w", lastErr)
}

// ParseSession extracts the focused page from decoded session JSON.
func ParseSession(raw []byte) (Page, error) {
	var sf sessionFile
	if err := json.Unmarshal(raw, &sf); err != nil {
		return Page{}, fmt.Errorf("decode session: %w", err)
	}
	wi := pick(sf.SelectedWindow, len(sf.Windows))
	if wi < 0 {
		return Page{}, ErrNoActivePage
	}
	w := sf.Windows[wi]
	ti := pick(w.Selected, len(w.Tabs))
	if ti < 0 {
		return Page{}, ErrNoActivePage
	}
	tab := w.Tabs[ti]
	ei := pick(tab.Index, len(tab.Entries))
	if ei < 0 {
		return Page{}, ErrNoActivePage
	}
	e := tab.Entries[ei]
	if e.URL == "" {
		return Page{}, ErrNoActivePage
	}
	return Page{URL: e.URL, Title: e.Title}, nil
}

// pick converts a 1-based index, clamping out-of-range values to the last
// element. Returns -1 for an empty list.
func pick(oneBased, n int) int {
	if n == 0 {
		return -1
	}
	i := oneBased - 1
	if i < 0 || i >= n {
		return n - 1
	}
	return i
}
