// Package extraction forwards uploaded annual report documents to the
// external extraction service and returns the structured dataset payload it
// produces. Results are cached by document checksum; re-uploading the same
// report never re-runs extraction.
package extraction

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/finlens/finlens/internal/clientdata"
)

// Client for the document extraction service.
type Client struct {
	baseURL   string
	client    *http.Client
	log       zerolog.Logger
	cacheRepo *clientdata.Repository
}

// NewClient creates an extraction client. An empty baseURL disables the
// client; Extract then fails with a configuration error.
// cacheRepo is optional - if nil, caching is disabled.
func NewClient(baseURL string, cacheRepo *clientdata.Repository, log zerolog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		// Extraction parses whole PDF reports; allow it time.
		client:    &http.Client{Timeout: 120 * time.Second},
		log:       log.With().Str("client", "extraction").Logger(),
		cacheRepo: cacheRepo,
	}
}

// Enabled reports whether an extraction service is configured.
func (c *Client) Enabled() bool {
	return c.baseURL != ""
}

// Extract sends a document to the extraction service and returns the raw
// dataset JSON it produced.
func (c *Client) Extract(ctx context.Context, filename string, document []byte) (json.RawMessage, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("no extraction service configured")
	}

	checksum := sha256.Sum256(document)
	cacheKey := hex.EncodeToString(checksum[:])

	if c.cacheRepo != nil {
		data, err := c.cacheRepo.GetIfFresh("extraction", cacheKey)
		if err == nil && data != nil {
			c.log.Debug().Str("checksum", cacheKey[:12]).Msg("Extraction cache hit")
			return data, nil
		}
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("failed to build multipart body: %w", err)
	}
	if _, err := part.Write(document); err != nil {
		return nil, fmt.Errorf("failed to write document: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize multipart body: %w", err)
	}

	url := c.baseURL + "/extract"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	c.log.Info().Str("filename", filename).Int("bytes", len(document)).Msg("Sending document for extraction")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("extraction request failed: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read extraction response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("extraction service returned status %d: %s",
			resp.StatusCode, truncate(string(payload), 200))
	}

	if !json.Valid(payload) {
		return nil, fmt.Errorf("extraction service returned invalid JSON")
	}

	if c.cacheRepo != nil {
		if err := c.cacheRepo.Store("extraction", cacheKey, json.RawMessage(payload), clientdata.TTLExtraction); err != nil {
			c.log.Warn().Err(err).Msg("Failed to cache extraction result")
		}
	}

	return payload, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
