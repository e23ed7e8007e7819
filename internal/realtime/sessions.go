package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"voxcanvas/internal/session"
)

const requestTimeout = 30 * time.Second

// SessionInfo is one persisted session as listed by the backend.
type SessionInfo struct {
	Name     string `json:"name"`
	Modified string `json:"modified"`
}

// SessionsClient talks to the backend's session store over plain HTTP.
type SessionsClient struct {
	base string
	hc   *http.Client
}

// NewSessionsClient creates a client for the HTTP API rooted at base
// (e.g. http://localhost:8000). A nil hc uses a client with a 30s timeout.
func NewSessionsClient(base string, hc *http.Client) *SessionsClient {
	if hc == nil {
		hc = &http.Client{Timeout: requestTimeout}
	}
	return &SessionsClient{base: strings.TrimRight(base, "/"), hc: hc}
}

// HTTPBase derives the HTTP API root from a websocket endpoint URL.
func HTTPBase(wsURL string) (string, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return "", fmt.Errorf("realtime: parse %q: %w", wsURL, err)
	}
	switch u.Scheme {
	case "ws":
		u.Scheme = "http"
	case "wss":
		u.Scheme = "https"
	case "http", "https":
	default:
		return "", fmt.Errorf("realtime: unsupported scheme %q", u.Scheme)
	}
	u.Path, u.RawPath, u.RawQuery, u.Fragment = "", "", "", ""
	return u.String(), nil
}

// ListSessions returns the persisted sessions in the order the backend
// lists them.
func (c *SessionsClient) ListSessions(ctx context.Context) ([]SessionInfo, error) {
	var out []SessionInfo
	if err := c.getJSON(ctx, "/api/sessions", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// FetchSession returns the full history of the named session.
func (c *SessionsClient) FetchSession(ctx context.Context, name string) ([]session.HistoryEntry, error) {
	if name == "" {
		return nil, fmt.Errorf("realtime: session name is required")
	}
	var out []session.HistoryEntry
	if err := c.getJSON(ctx, "/api/session/"+url.PathEscape(name), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Export downloads the current session archive into dir and returns the
// written path. The server's filename is used when it provides one.
func (c *SessionsClient) Export(ctx context.Context, dir, fallback string) (string, error) {
	resp, err := c.get(ctx, "/api/export")
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	name := exportName(resp.Header.Get("Content-Disposition"), fallback)
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("realtime: export: %w", err)
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("realtime: export: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("realtime: export: %w", err)
	}
	return path, nil
}

func (c *SessionsClient) getJSON(ctx context.Context, path string, v any) error {
	resp, err := c.get(ctx, path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("realtime: GET %s: decode: %w", path, err)
	}
	return nil
}

func (c *SessionsClient) get(ctx context.Context, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("realtime: GET %s: %w", path, err)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return nil, fmt.Errorf("realtime: GET %s: %s: %s", path, resp.Status, strings.TrimSpace(string(body)))
	}
	return resp, nil
}

// exportName picks a safe local filename for a downloaded archive.
func exportName(disposition, fallback string) string {
	if _, params, err := mime.ParseMediaType(disposition); err == nil {
		if name := filepath.Base(params["filename"]); name != "." && name != "/" && name != "" {
			return name
		}
	}
	if fallback == "" {
		fallback = "session"
	}
	fallback = strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' || r == os.PathSeparator {
			return '_'
		}
		return r
	}, fallback)
	return fallback + ".zip"
}
