// Package uploader ships finished snapshots to a gallery daemon.
package uploader

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/snapcommit/snapcommit/internal/gitmeta"
	"github.com/snapcommit/snapcommit/internal/logger"
)

// Client uploads snapshot images to a gallery endpoint.
type Client struct {
	url  string
	http *http.Client
}

// New returns a client posting to url with the given request timeout.
func New(url string, timeout time.Duration) *Client {
	return &Client{
		url:  url,
		http: &http.Client{Timeout: timeout},
	}
}

// Upload posts the PNG together with its commit metadata as a
// multipart form. The metadata part drives revision dedup on the
// gallery side and, for raw frames, the server-side annotation. The
// gallery accepts uploads asynchronously, so both 200 and 202 count
// as success.
func (c *Client) Upload(ctx context.Context, filename string, png []byte, meta *gitmeta.CommitMetadata) error {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	part, err := mw.CreateFormFile("image", filename)
	if err != nil {
		return fmt.Errorf("uploader: build form: %w", err)
	}
	if _, err := part.Write(png); err != nil {
		return fmt.Errorf("uploader: write image part: %w", err)
	}

	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("uploader: encode metadata: %w", err)
	}
	if err := mw.WriteField("metadata", string(metaJSON)); err != nil {
		return fmt.Errorf("uploader: write metadata part: %w", err)
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("uploader: finalize form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, &body)
	if err != nil {
		return fmt.Errorf("uploader: build request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("uploader: post to %s: %w", c.url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("uploader: gallery rejected upload: %s: %s", resp.Status, snippet)
	}

	logger.Info("snapshot uploaded", "url", c.url, "file", filename, "status", resp.StatusCode)
	return nil
}
