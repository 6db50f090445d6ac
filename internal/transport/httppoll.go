package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPPoller implements Poller over plain HTTP long-polling, the
// fallback path spec §4.G requires when the websocket dial itself
// fails or degrades past the reprobe budget. No corpus library
// targets this exchange specifically, so it is built directly on
// net/http the same way the teacher's own metrics/health endpoints
// are (go-server-3/cmd/odin-ws/main.go's runHTTPServer).
type HTTPPoller struct {
	BaseURL string
	Client  *http.Client
}

// NewHTTPPoller builds a poller against baseURL, expecting
// baseURL+"/handshake", baseURL+"/send", and baseURL+"/poll" endpoints.
func NewHTTPPoller(baseURL string, timeout time.Duration) *HTTPPoller {
	return &HTTPPoller{
		BaseURL: baseURL,
		Client:  &http.Client{Timeout: timeout},
	}
}

func (p *HTTPPoller) Handshake(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.BaseURL+"/handshake", nil)
	if err != nil {
		return "", err
	}
	resp, err := p.Client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("handshake failed: status %d", resp.StatusCode)
	}

	var body struct {
		SessionID string `json:"sessionId"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", err
	}
	return body.SessionID, nil
}

func (p *HTTPPoller) Send(ctx context.Context, sessionID string, payload []byte) error {
	url := fmt.Sprintf("%s/send?session=%s", p.BaseURL, sessionID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := p.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("send failed: status %d", resp.StatusCode)
	}
	return nil
}

func (p *HTTPPoller) Poll(ctx context.Context, sessionID string, timeout time.Duration) ([][]byte, error) {
	url := fmt.Sprintf("%s/poll?session=%s&timeoutMs=%d", p.BaseURL, sessionID, timeout.Milliseconds())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := p.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNoContent {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("poll failed: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var frames [][]byte
	if err := json.Unmarshal(body, &frames); err != nil {
		return nil, err
	}
	return frames, nil
}
