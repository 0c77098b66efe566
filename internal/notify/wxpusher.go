package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	defaultWxPusherEndpoint = "https://wxpusher.zjiecode.com/api/send/message"
	wxPusherContentMarkdown = 3
	wxPusherCodeOK          = 1000
)

// WxPusherNotifier sends markdown messages through WxPusher.
type WxPusherNotifier struct {
	endpoint string
	appToken string
	uid      string
	client   *http.Client
}

type wxPusherRequest struct {
	AppToken    string   `json:"appToken"`
	Content     string   `json:"content"`
	Summary     string   `json:"summary"`
	ContentType int      `json:"contentType"`
	UIDs        []string `json:"uids"`
	VerifyPay   bool     `json:"verifyPay"`
}

type wxPusherResponse struct {
	Code    int    `json:"code"`
	Msg     string `json:"msg"`
	Success bool   `json:"success"`
}

// NewWxPusherNotifier creates a WxPusher notifier. An empty endpoint selects
// the public API.
func NewWxPusherNotifier(endpoint, appToken, uid string) (*WxPusherNotifier, error) {
	if appToken == "" || uid == "" {
		return nil, fmt.Errorf("wxpusher app token and uid are required")
	}
	if endpoint == "" {
		endpoint = defaultWxPusherEndpoint
	}
	return &WxPusherNotifier{
		endpoint: endpoint,
		appToken: appToken,
		uid:      uid,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}, nil
}

func (w *WxPusherNotifier) Send(ctx context.Context, title, body string) error {
	payload, err := json.Marshal(wxPusherRequest{
		AppToken:    w.appToken,
		Content:     fmt.Sprintf("# %s\n\n%s", title, body),
		Summary:     title,
		ContentType: wxPusherContentMarkdown,
		UIDs:        []string{w.uid},
		VerifyPay:   false,
	})
	if err != nil {
		return fmt.Errorf("encode wxpusher payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create wxpusher request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("send wxpusher notification: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return fmt.Errorf("read wxpusher response: %w", err)
	}
	var result wxPusherResponse
	if err := json.Unmarshal(raw, &result); err != nil {
		return fmt.Errorf("wxpusher returned %d with unreadable body: %w", resp.StatusCode, err)
	}
	if result.Code != wxPusherCodeOK {
		return fmt.Errorf("wxpusher rejected message: code=%d msg=%s", result.Code, result.Msg)
	}
	return nil
}
