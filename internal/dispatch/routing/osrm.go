// Package routing adapts an OSRM instance as the dispatcher's RouteProvider.
package routing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/example/haulite/internal/dispatch/domain"
)

// OSRMProvider requests driving routes through an ordered waypoint list and
// returns the dense road geometry. Safe for concurrent use.
type OSRMProvider struct {
	session *http.Client
	baseURL string
	profile string
}

// NewOSRMProvider builds a provider against the given OSRM base URL.
func NewOSRMProvider(baseURL string, timeout time.Duration) (*OSRMProvider, error) {
	if baseURL == "" {
		return nil, errors.New("osrm base url is empty")
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &OSRMProvider{
		session: &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(baseURL, "/"),
		profile: "driving",
	}, nil
}

type osrmResponse struct {
	Code   string `json:"code"`
	Routes []struct {
		Geometry struct {
			Coordinates [][]float64 `json:"coordinates"`
		} `json:"geometry"`
	} `json:"routes"`
}

// Snap fetches road geometry through the waypoints in order.
func (o *OSRMProvider) Snap(ctx context.Context, waypoints []domain.GeoPoint) ([]domain.GeoPoint, error) {
	if len(waypoints) < 2 {
		return nil, errors.New("snap route: need at least two waypoints")
	}

	url := fmt.Sprintf("%s/route/v1/%s/%s?overview=full&geometries=geojson",
		o.baseURL, o.profile, coordPath(waypoints))

	resp, err := o.doWithRetry(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("snap route: %w", err)
	}
	defer resp.Body.Close()

	var decoded osrmResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("snap route: decode response: %w", err)
	}
	if decoded.Code != "Ok" || len(decoded.Routes) == 0 {
		return nil, fmt.Errorf("snap route: service returned code %q", decoded.Code)
	}

	coords := decoded.Routes[0].Geometry.Coordinates
	if len(coords) < 2 {
		return nil, errors.New("snap route: geometry too short")
	}

	points := make([]domain.GeoPoint, 0, len(coords))
	for _, c := range coords {
		if len(c) < 2 {
			return nil, errors.New("snap route: malformed coordinate")
		}
		points = append(points, domain.GeoPoint{Lat: c[1], Lng: c[0]})
	}
	return points, nil
}

// doWithRetry retries transient failures (network errors, 5xx responses) with
// exponential backoff while respecting context cancellation.
func (o *OSRMProvider) doWithRetry(ctx context.Context, url string) (*http.Response, error) {
	const maxAttempts = 3
	backoff := 100 * time.Millisecond

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := o.do(req)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if !retryable(err) || attempt == maxAttempts {
			return nil, lastErr
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
		backoff *= 2
	}
	return nil, lastErr
}

func (o *OSRMProvider) do(req *http.Request) (*http.Response, error) {
	resp, err := o.session.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		b, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, &httpStatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}
	return resp, nil
}

func retryable(err error) bool {
	var he *httpStatusError
	if errors.As(err, &he) {
		switch he.Code {
		case http.StatusTooManyRequests,
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout:
			return true
		}
		return false
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

type httpStatusError struct {
	Code int
	Body string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("status %d: %s", e.Code, e.Body)
}

func coordPath(points []domain.GeoPoint) string {
	var b strings.Builder
	for i, p := range points {
		if i > 0 {
			b.WriteByte(';')
		}
		b.WriteString(strconv.FormatFloat(p.Lng, 'f', 6, 64))
		b.WriteByte(',')
		b.WriteString(strconv.FormatFloat(p.Lat, 'f', 6, 64))
	}
	return b.String()
}
