package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/example/haulite/internal/dispatch/domain"
	"github.com/example/haulite/pkg/observability"
)

// trucksim replays a computed route against a running dispatch service. It
// walks the route point by point, reporting each position over HTTP, and
// pauses whenever the service announces an arrival until that stop resolves.

type simConfig struct {
	BaseURL  string
	ClientID string
	Interval time.Duration
	Loop     bool
}

type snapshot struct {
	LastRoute *domain.Route `json:"last_route"`
}

func main() {
	logger := observability.SetupLogger("trucksim")
	defer logger.Sync() //nolint:errcheck

	cfg := simConfig{
		BaseURL:  getenv("DISPATCH_URL", "http://localhost:8080"),
		ClientID: getenv("SIM_CLIENT_ID", "sim-"+uuid.NewString()[:8]),
		Interval: time.Duration(parseIntEnv("SIM_INTERVAL_MS", 1000)) * time.Millisecond,
		Loop:     os.Getenv("SIM_LOOP") == "1",
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	route, err := fetchRoute(ctx, cfg.BaseURL)
	if err != nil {
		logger.Fatal("fetch route", zap.Error(err))
	}
	if len(route.Points) < 2 {
		logger.Fatal("route has no points, compute one first")
	}
	logger.Info("route loaded",
		zap.Int("points", len(route.Points)),
		zap.Uint64("generation", route.Generation),
		zap.Bool("snapped", route.Snapped))

	pauser := newPauser()
	go watchEvents(ctx, logger, cfg, pauser)

	client := &http.Client{Timeout: 5 * time.Second}
	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	idx := 0
	for {
		select {
		case <-ctx.Done():
			logger.Info("simulation stopped")
			return
		case <-ticker.C:
		}

		if pauser.paused() {
			continue
		}

		point := route.Points[idx]
		if err := reportPosition(ctx, client, cfg, point); err != nil {
			logger.Warn("report position", zap.Error(err))
			continue
		}
		logger.Info("position reported",
			zap.Int("index", idx),
			zap.Float64("lat", point.Lat),
			zap.Float64("lng", point.Lng))

		idx++
		if idx >= len(route.Points) {
			if !cfg.Loop {
				logger.Info("route complete")
				return
			}
			idx = 0
		}
	}
}

// pauser tracks pickup ids the truck is currently stopped at. The simulator
// holds position until every announced arrival has been resolved or removed.
type pauser struct {
	mu      sync.Mutex
	waiting map[string]struct{}
}

func newPauser() *pauser {
	return &pauser{waiting: map[string]struct{}{}}
}

func (p *pauser) add(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.waiting[id] = struct{}{}
}

func (p *pauser) clear(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.waiting, id)
}

func (p *pauser) paused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.waiting) > 0
}

func watchEvents(ctx context.Context, logger *zap.Logger, cfg simConfig, pauser *pauser) {
	wsURL, err := websocketURL(cfg.BaseURL, cfg.ClientID)
	if err != nil {
		logger.Warn("bad dispatch url, arrival pausing disabled", zap.Error(err))
		return
	}

	for ctx.Err() == nil {
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
		if err != nil {
			logger.Warn("websocket dial", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(2 * time.Second):
			}
			continue
		}

		go func() {
			<-ctx.Done()
			_ = conn.Close()
		}()

		for {
			var event struct {
				Type      domain.EventType      `json:"type"`
				RequestID string                `json:"request_id"`
				Request   *domain.PickupRequest `json:"request"`
			}
			if err := conn.ReadJSON(&event); err != nil {
				_ = conn.Close()
				break
			}

			switch event.Type {
			case domain.EventStopArrived:
				id := event.RequestID
				if id == "" && event.Request != nil {
					id = event.Request.ID
				}
				if id != "" {
					logger.Info("arrived at stop, waiting for resolution", zap.String("pickup", id))
					pauser.add(id)
				}
			case domain.EventPickupResolved, domain.EventPickupRemoved:
				id := event.RequestID
				if id == "" && event.Request != nil {
					id = event.Request.ID
				}
				if id != "" {
					pauser.clear(id)
				}
			}
		}
	}
}

func fetchRoute(ctx context.Context, baseURL string) (*domain.Route, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/v1/snapshot", nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("snapshot returned %d", resp.StatusCode)
	}

	var snap snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return nil, err
	}
	if snap.LastRoute == nil {
		return nil, fmt.Errorf("no route computed yet")
	}
	return snap.LastRoute, nil
}

func reportPosition(ctx context.Context, client *http.Client, cfg simConfig, p domain.GeoPoint) error {
	body, err := json.Marshal(map[string]any{"location": p})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.BaseURL+"/v1/truck/position", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Client-ID", cfg.ClientID)

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("position report returned %d", resp.StatusCode)
	}
	return nil
}

func websocketURL(baseURL, clientID string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = "/ws"
	q := u.Query()
	q.Set("client_id", clientID)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseIntEnv(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return fallback
}
