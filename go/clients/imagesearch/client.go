package imagesearch

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/mcdev12/outsider/go/clients"
	"github.com/tidwall/gjson"
)

var ErrNoResult = errors.New("no image found")

type Config struct {
	BaseURL    string
	APIKey     string
	ResultPath string
	Timeout    time.Duration
}

// Client looks up a single display image for a free-text query.
type Client struct {
	*clients.BaseClient
	resultPath string
}

func NewClient(cfg Config) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	resultPath := cfg.ResultPath
	if resultPath == "" {
		resultPath = DefaultResultPath
	}

	client := &Client{
		BaseClient: clients.NewBaseClient(baseURL),
		resultPath: resultPath,
	}
	if cfg.APIKey != "" {
		client.SetHeader(AuthorizationHeader, cfg.APIKey)
	}
	if cfg.Timeout > 0 {
		client.SetTimeout(cfg.Timeout)
	}

	return client
}

// Search returns the URL of the first image matching query.
func (c *Client) Search(ctx context.Context, query string) (string, error) {
	params := url.Values{}
	params.Set("query", query)
	params.Set("per_page", strconv.Itoa(DefaultPerPage))

	body, err := c.Get(ctx, SearchEndpoint+"?"+params.Encode())
	if err != nil {
		return "", fmt.Errorf("failed to search images: %w", err)
	}

	if !gjson.ValidBytes(body) {
		return "", fmt.Errorf("invalid JSON in image search response for %q", query)
	}

	result := gjson.GetBytes(body, c.resultPath)
	if !result.Exists() || result.String() == "" {
		return "", fmt.Errorf("%w: %s", ErrNoResult, query)
	}

	return result.String(), nil
}
