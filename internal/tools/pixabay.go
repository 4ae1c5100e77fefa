package tools

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"

	"github.com/strawberry/sitebuilder-go/internal/config"
)

const defaultPixabayURL = "https://pixabay.com/api/"

var (
	ErrImageSearchDisabled = errors.New("image search is not configured")
	ErrImageSearchLimited  = errors.New("image search rate limit exceeded (HTTP 429), try again next minute")
)

// ImageSearcher finds image URLs for a query.
type ImageSearcher interface {
	Search(ctx context.Context, req SearchImages) (ImageResults, error)
}

type ImageResults struct {
	Query string
	URLs  []string
}

type PixabayClient struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

func NewPixabayClient(apiKey string) *PixabayClient {
	return &PixabayClient{
		apiKey:  apiKey,
		baseURL: defaultPixabayURL,
		client:  &http.Client{Timeout: config.PixabayTimeout},
	}
}

func (c *PixabayClient) WithBaseURL(u string) *PixabayClient {
	c.baseURL = u
	return c
}

func (c *PixabayClient) Search(ctx context.Context, req SearchImages) (ImageResults, error) {
	if req.Query == "" {
		return ImageResults{}, errors.New("search query cannot be empty")
	}
	if c.apiKey == "" {
		return ImageResults{}, ErrImageSearchDisabled
	}

	perPage := min(max(req.PerPage, 3), 200)
	page := max(req.Page, 1)
	query := simplifyQuery(req.Query)

	params := url.Values{
		"key":        {c.apiKey},
		"q":          {query},
		"per_page":   {strconv.Itoa(perPage)},
		"page":       {strconv.Itoa(page)},
		"safesearch": {strconv.FormatBool(req.SafeSearch)},
		"image_type": {"photo"},
		"lang":       {queryLanguage(req.Query)},
	}

	body, status, err := c.get(ctx, params)
	if err != nil {
		return ImageResults{}, err
	}
	if status == http.StatusBadRequest || status == http.StatusUnprocessableEntity {
		log.Warn().Int("status", status).Str("query", query).Msg("Pixabay rejected query, retrying with fallback")
		query = fallbackQuery
		params.Set("q", query)
		params.Set("per_page", "3")
		params.Set("page", "1")
		params.Set("safesearch", "true")
		params.Set("lang", "en")
		body, status, err = c.get(ctx, params)
		if err != nil {
			return ImageResults{}, err
		}
	}
	if status != http.StatusOK {
		return ImageResults{}, fmt.Errorf("pixabay: unexpected status %d", status)
	}

	var urls []string
	for _, hit := range gjson.GetBytes(body, "hits").Array() {
		for _, key := range []string{"imageURL", "fullHDURL", "largeImageURL", "webformatURL"} {
			if u := hit.Get(key).String(); u != "" {
				urls = append(urls, u)
				break
			}
		}
	}
	return ImageResults{Query: query, URLs: urls}, nil
}

func (c *PixabayClient) get(ctx context.Context, params url.Values) ([]byte, int, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, 0, err
	}
	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, 0, fmt.Errorf("pixabay request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, resp.StatusCode, ErrImageSearchLimited
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read pixabay response: %w", err)
	}
	return body, resp.StatusCode, nil
}
