package audio

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

var _ Transcoder = (*ConvertServiceTranscoder)(nil)

// ConvertServiceTranscoder posts the recording to an external conversion
// service ({base}/api/convert) that answers with raw PCM16 mono 24 kHz.
type ConvertServiceTranscoder struct {
	base   string
	client *http.Client
	// maxBytes bounds the response size.
	maxBytes int64
}

func NewConvertServiceTranscoder(base string, timeout time.Duration) *ConvertServiceTranscoder {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &ConvertServiceTranscoder{
		base:     strings.TrimRight(base, "/"),
		client:   &http.Client{Timeout: timeout},
		maxBytes: 64 << 20,
	}
}

func (c *ConvertServiceTranscoder) Name() string { return "convert_service" }

func (c *ConvertServiceTranscoder) Transcode(ctx context.Context, raw []byte, format string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/api/convert", bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "audio/"+format)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("convert http %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBytes))
	if err != nil {
		return nil, fmt.Errorf("convert read: %w", err)
	}
	return body, nil
}
