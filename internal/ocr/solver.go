// Package ocr talks to a ddddocr-style captcha recognition server.
package ocr

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrEmptyAnswer is returned when the server recognised nothing.
var ErrEmptyAnswer = errors.New("ocr returned an empty answer")

// Solver posts base64 images to an OCR endpoint and returns the text.
type Solver struct {
	endpoint string
	client   *http.Client
}

// NewSolver creates a solver for endpoint.
func NewSolver(endpoint string, timeout time.Duration) (*Solver, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, errors.New("ocr endpoint is required")
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Solver{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}, nil
}

// Solve returns the recognised characters of image.
func (s *Solver) Solve(ctx context.Context, image []byte) (string, error) {
	if len(image) == 0 {
		return "", errors.New("empty captcha image")
	}
	body := base64.StdEncoding.EncodeToString(image)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewBufferString(body))
	if err != nil {
		return "", fmt.Errorf("create ocr request: %w", err)
	}
	req.Header.Set("Content-Type", "text/plain")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("call ocr: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4*1024))
	if err != nil {
		return "", fmt.Errorf("read ocr response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("ocr returned %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	answer := strings.TrimSpace(string(raw))
	if answer == "" {
		return "", ErrEmptyAnswer
	}
	return answer, nil
}
