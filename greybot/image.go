package greybot

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/lmittmann/tint"
)

const (
	upstreamPexels  = "pexels"
	pexelsSearchURL = "https://api.pexels.com/v1/search"
)

// ImageClient looks up a single image URL via the Pexels API.
// A nil ImageClient is valid and means the `!image` command is
// unconfigured.
type ImageClient struct {
	config     *ImageConfig
	httpClient *http.Client
	logger     *slog.Logger
}

func newImageClient(config *ImageConfig, httpClient *http.Client) *ImageClient {
	if config.APIKey == "" {
		return nil
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &ImageClient{
		config:     config,
		httpClient: httpClient,
		logger: slog.Default().With(
			loggerNameKey, "image",
		),
	}
}

// Lookup returns the URL of the top image matching query, or an
// empty string when nothing matched. Network failures and
// non-success statuses are UpstreamError.
func (c *ImageClient) Lookup(ctx context.Context, query string) (string, error) {
	if c.config.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.RequestTimeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodGet,
		pexelsSearchURL,
		nil,
	)
	if err != nil {
		return "", NewUpstreamError(upstreamPexels, 0, err)
	}
	q := req.URL.Query()
	q.Set("query", query)
	q.Set("per_page", "1")
	req.URL.RawQuery = q.Encode()
	req.Header.Set("Authorization", c.config.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.ErrorContext(ctx, "image request failed", tint.Err(err))
		return "", NewUpstreamError(upstreamPexels, 0, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		c.logger.ErrorContext(
			ctx,
			"image lookup returned non-success status",
			"status", resp.StatusCode,
		)
		return "", NewUpstreamError(
			upstreamPexels,
			resp.StatusCode,
			fmt.Errorf("unexpected status %d", resp.StatusCode),
		)
	}

	var data struct {
		Photos []struct {
			Src struct {
				Large string `json:"large"`
			} `json:"src"`
		} `json:"photos"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return "", NewUpstreamError(upstreamPexels, resp.StatusCode, err)
	}

	if len(data.Photos) == 0 {
		c.logger.InfoContext(ctx, "no images found", "query", query)
		return "", nil
	}
	return data.Photos[0].Src.Large, nil
}
