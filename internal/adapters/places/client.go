// Package places queries the Google Places API (New) nearby search endpoint.
package places

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/samirrijal/pharmacover/internal/core/domain"
	"github.com/samirrijal/pharmacover/internal/pkg/metrics"
	"github.com/samirrijal/pharmacover/internal/pkg/telemetry"
)

const (
	DefaultBaseURL     = "https://places.googleapis.com"
	searchNearbyPath   = "/v1/places:searchNearby"
	fieldMask          = "places.displayName,places.location,places.formattedAddress,nextPageToken"
	defaultHTTPTimeout = 30 * time.Second
	defaultMaxResults  = 20
	maxErrorBody       = 512
)

// Options configures a Client. Zero values fall back to the public API defaults,
// except PageDelay: the upstream asks for about 2s before a continuation token
// becomes valid, and zero disables the wait.
type Options struct {
	APIKey            string
	BaseURL           string
	HTTPClient        *http.Client
	IncludedTypes     []string
	MaxResultCount    int
	PageDelay         time.Duration
	RequestsPerSecond float64
	Logger            *slog.Logger
}

// Client performs paginated nearby searches. It is safe for concurrent use; the
// rate limiter is shared by all callers.
type Client struct {
	apiKey         string
	baseURL        string
	httpClient     *http.Client
	includedTypes  []string
	maxResultCount int
	pageDelay      time.Duration
	limiter        *rate.Limiter
	logger         *slog.Logger
}

// NewClient creates a places client.
func NewClient(opts Options) *Client {
	if strings.TrimSpace(opts.BaseURL) == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: defaultHTTPTimeout}
	}
	if len(opts.IncludedTypes) == 0 {
		opts.IncludedTypes = []string{"pharmacy"}
	}
	if opts.MaxResultCount <= 0 {
		opts.MaxResultCount = defaultMaxResults
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}

	return &Client{
		apiKey:         opts.APIKey,
		baseURL:        strings.TrimRight(opts.BaseURL, "/"),
		httpClient:     opts.HTTPClient,
		includedTypes:  opts.IncludedTypes,
		maxResultCount: opts.MaxResultCount,
		pageDelay:      opts.PageDelay,
		limiter:        rate.NewLimiter(limit, 1),
		logger:         opts.Logger,
	}
}

// IncludedTypes returns the place types the client filters on.
func (c *Client) IncludedTypes() []string { return c.includedTypes }

type latLng struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type searchNearbyRequest struct {
	LocationRestriction struct {
		Circle struct {
			Center latLng  `json:"center"`
			Radius float64 `json:"radius"`
		} `json:"circle"`
	} `json:"locationRestriction"`
	IncludedTypes  []string `json:"includedTypes"`
	MaxResultCount int      `json:"maxResultCount"`
	PageToken      string   `json:"pageToken,omitempty"`
}

type searchNearbyResponse struct {
	Places []struct {
		DisplayName *struct {
			Text string `json:"text"`
		} `json:"displayName"`
		Location         latLng `json:"location"`
		FormattedAddress string `json:"formattedAddress"`
	} `json:"places"`
	NextPageToken string `json:"nextPageToken"`
}

// SearchNearby returns every place inside the circle, following continuation
// tokens until the upstream stops returning one. The request count includes
// the failed request when an error is returned.
func (c *Client) SearchNearby(ctx context.Context, center domain.GeoPoint, radiusMeters float64) ([]domain.Place, int, error) {
	if c.apiKey == "" {
		return nil, 0, fmt.Errorf("places api key is required")
	}

	var body searchNearbyRequest
	body.LocationRestriction.Circle.Center = latLng{Latitude: center.Lat, Longitude: center.Lon}
	body.LocationRestriction.Circle.Radius = radiusMeters
	body.IncludedTypes = c.includedTypes
	body.MaxResultCount = c.maxResultCount

	var (
		places   []domain.Place
		requests int
	)
	for page := 1; ; page++ {
		if page > 1 {
			if err := sleepCtx(ctx, c.pageDelay); err != nil {
				return nil, requests, err
			}
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, requests, err
		}

		resp, err := c.fetchPage(ctx, &body, page)
		requests++
		if err != nil {
			return nil, requests, fmt.Errorf("cell (%.4f, %.4f) page %d: %w", center.Lat, center.Lon, page, err)
		}

		for _, p := range resp.Places {
			name := domain.DefaultPlaceName
			if p.DisplayName != nil && p.DisplayName.Text != "" {
				name = p.DisplayName.Text
			}
			places = append(places, domain.Place{
				Name:      name,
				Address:   p.FormattedAddress,
				Latitude:  p.Location.Latitude,
				Longitude: p.Location.Longitude,
			})
		}

		if resp.NextPageToken == "" {
			break
		}
		body.PageToken = resp.NextPageToken
	}

	c.logger.Debug("cell searched",
		"lat", center.Lat,
		"lon", center.Lon,
		"places", len(places),
		"requests", requests,
	)
	return places, requests, nil
}

func (c *Client) fetchPage(ctx context.Context, body *searchNearbyRequest, page int) (*searchNearbyResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, telemetry.SpanPlacesPage)
	defer span.End()
	span.SetAttributes(telemetry.AttrPageNumber.Int(page))

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+searchNearbyPath, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Goog-Api-Key", c.apiKey)
	req.Header.Set("X-Goog-FieldMask", fieldMask)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	metrics.PlacesRequestDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.PlacesRequests.WithLabelValues("error").Inc()
		span.RecordError(err)
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	metrics.PlacesRequests.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		err := fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
		span.RecordError(err)
		return nil, err
	}

	var out searchNearbyResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &out, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
