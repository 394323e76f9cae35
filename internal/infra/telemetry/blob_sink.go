package telemetry

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	neturl "net/url"
	"strings"
	"time"

	"voice-companion/internal/domain"
	"voice-companion/internal/domain/model"
	"voice-companion/internal/domain/ports/adapter"
)

var _ adapter.TelemetrySink = (*BlobSink)(nil)

const defaultBlobURL = "https://api.vercel.com/v2/blob"

// BlobSink uploads each record as a named JSON blob.
type BlobSink struct {
	url     string
	token   string
	project string
	hc      *http.Client
}

func NewBlobSink(url, token, project string, timeout time.Duration) *BlobSink {
	if url == "" {
		url = defaultBlobURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &BlobSink{url: url, token: token, project: project, hc: &http.Client{Timeout: timeout}}
}

func (s *BlobSink) Name() string { return "blob" }

type blobUpload struct {
	ProjectID string `json:"projectId"`
	Data      string `json:"data"`
	Name      string `json:"name"`
}

// BlobName is turns/<session>/<yyyymmdd>/<turn id>.json.
func BlobName(rec model.TurnLog) string {
	return fmt.Sprintf("turns/%s/%s/%s.json", pathSegment(rec.SessionKey), rec.Timestamp.UTC().Format("20060102"), pathSegment(rec.TurnID))
}

// pathSegment escapes caller-supplied text so it stays a single segment.
func pathSegment(s string) string {
	esc := neturl.PathEscape(s)
	if strings.Trim(esc, ".") == "" {
		return strings.Repeat("%2E", len(esc)) + "_"
	}
	return esc
}

func (s *BlobSink) Write(ctx context.Context, rec model.TurnLog) error {
	if s.token == "" || s.project == "" {
		return fmt.Errorf("%w: blob: token or project not configured", domain.ErrSink)
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("%w: blob encode: %v", domain.ErrSink, err)
	}
	body, _ := json.Marshal(blobUpload{
		ProjectID: s.project,
		Data:      base64.StdEncoding.EncodeToString(raw),
		Name:      BlobName(rec),
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: blob: %v", domain.ErrSink, err)
	}
	req.Header.Set("Authorization", "Bearer "+s.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.hc.Do(req)
	if err != nil {
		return fmt.Errorf("%w: blob: %v", domain.ErrSink, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: blob: status %d: %s", domain.ErrSink, resp.StatusCode, bytes.TrimSpace(msg))
	}
	return nil
}
