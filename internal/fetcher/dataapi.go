package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	activityPath  = "/activity"
	positionsPath = "/positions"
)

// DataAPIOptions parameterise the public feed client.
type DataAPIOptions struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
}

// DataAPI fetches activity and position feeds from the Polymarket data API.
type DataAPI struct {
	opts    DataAPIOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewDataAPI constructs a feed client.
func NewDataAPI(opts DataAPIOptions, logger zerolog.Logger) *DataAPI {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://data-api.polymarket.com"
	}

	return &DataAPI{
		opts:    opts,
		logger:  logger.With().Str("component", "dataapi_fetcher").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// FetchActivities retrieves the raw activity feed for a trader address.
func (d *DataAPI) FetchActivities(ctx context.Context, address string) ([]RawActivity, error) {
	payload, err := d.get(ctx, activityPath, address)
	if err != nil {
		return nil, err
	}

	items := DecodeList(payload, "data", "activities", "results")

	activities := make([]RawActivity, 0, len(items))
	for _, item := range items {
		var raw RawActivity
		if err := json.Unmarshal(item, &raw); err != nil {
			d.logger.Warn().Err(err).Msg("skip undecodable activity entry")
			continue
		}
		activities = append(activities, raw)
	}
	return activities, nil
}

// FetchPositions retrieves the raw positions feed for a trader address.
func (d *DataAPI) FetchPositions(ctx context.Context, address string) ([]RawPosition, error) {
	payload, err := d.get(ctx, positionsPath, address)
	if err != nil {
		return nil, err
	}

	items := DecodeList(payload, "data", "positions", "results")

	positions := make([]RawPosition, 0, len(items))
	for _, item := range items {
		var raw RawPosition
		if err := json.Unmarshal(item, &raw); err != nil {
			d.logger.Warn().Err(err).Msg("skip undecodable position entry")
			continue
		}
		positions = append(positions, raw)
	}
	return positions, nil
}

func (d *DataAPI) get(ctx context.Context, path, address string) ([]byte, error) {
	if strings.TrimSpace(address) == "" {
		return nil, errors.New("trader address required")
	}

	endpoint := d.baseURL + path + "?user=" + url.QueryEscape(address)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(d.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		return nil, parseHTTPError(resp.StatusCode, payload)
	}
	return payload, nil
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func parseHTTPError(status int, payload []byte) error {
	var apiErr errorResponse
	if err := json.Unmarshal(payload, &apiErr); err == nil {
		if apiErr.Error != "" {
			return fmt.Errorf("data api error (%d): %s", status, apiErr.Error)
		}
		if apiErr.Message != "" {
			return fmt.Errorf("data api error (%d): %s", status, apiErr.Message)
		}
	}
	if len(payload) > 0 {
		return fmt.Errorf("data api error (%d): %s", status, strings.TrimSpace(string(payload)))
	}
	return fmt.Errorf("data api error (%d)", status)
}

var _ FeedFetcher = (*DataAPI)(nil)
