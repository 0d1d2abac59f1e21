package main

import (
	"context"
	"database/sql"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/example/haulite/internal/accounts"
	"github.com/example/haulite/internal/auth"
	"github.com/example/haulite/internal/dispatch/broadcast"
	"github.com/example/haulite/internal/dispatch/domain"
	"github.com/example/haulite/internal/dispatch/handler"
	"github.com/example/haulite/internal/dispatch/ledger"
	"github.com/example/haulite/internal/dispatch/routing"
	dispatchservice "github.com/example/haulite/internal/dispatch/service"
	ratelimitmw "github.com/example/haulite/internal/http/middleware"
	"github.com/example/haulite/internal/track"
	"github.com/example/haulite/pkg/observability"
)

type appConfig struct {
	HTTPAddr       string
	GRPCAddr       string
	PostgresDSN    string
	RedisAddr      string
	NATSURL        string
	OSRMURL        string
	JWTSecret      string
	ArrivalRadiusM float64
	AvgSpeedKMH    float64
	SnapTimeout    time.Duration
	AwardPoints    int
	AwardBulkRate  float64
	RateAPI        ratelimitmw.RateConfig
	RatePosition   ratelimitmw.RateConfig
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := observability.SetupLogger("dispatchd")
	defer logger.Sync() //nolint:errcheck

	shutdown, err := observability.SetupTracer(ctx, "dispatchd")
	if err != nil {
		logger.Warn("tracer setup failed", zap.Error(err))
	} else {
		defer shutdown(context.Background())
	}

	cfg := loadConfig()

	var accountLedger domain.AccountLedger = accounts.NewMemoryLedger()
	if cfg.PostgresDSN != "" {
		db, err := sql.Open("pgx", cfg.PostgresDSN)
		if err != nil {
			logger.Fatal("postgres connect", zap.Error(err))
		}
		db.SetMaxOpenConns(10)
		db.SetConnMaxLifetime(5 * time.Minute)
		if err := db.PingContext(ctx); err != nil {
			logger.Fatal("postgres ping", zap.Error(err))
		}
		defer db.Close()

		pg := accounts.NewPostgresLedger(db)
		if err := pg.Migrate(ctx); err != nil {
			logger.Fatal("accounts migrate", zap.Error(err))
		}
		accountLedger = pg
	} else {
		logger.Warn("no postgres configured, account totals are in-memory only")
	}

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Warn("redis ping failed, rate limiting disabled", zap.Error(err))
			_ = redisClient.Close()
			redisClient = nil
		} else {
			defer redisClient.Close()
		}
	}

	var natsConn *nats.Conn
	if cfg.NATSURL != "" {
		if conn, err := nats.Connect(cfg.NATSURL, nats.Name("dispatchd")); err == nil {
			natsConn = conn
			defer conn.Drain() //nolint:errcheck
		} else {
			logger.Warn("nats connection failed", zap.Error(err))
		}
	}

	var provider domain.RouteProvider
	if cfg.OSRMURL != "" {
		osrm, err := routing.NewOSRMProvider(cfg.OSRMURL, cfg.SnapTimeout)
		if err != nil {
			logger.Warn("osrm setup failed, road snapping disabled", zap.Error(err))
		} else {
			provider = osrm
		}
	}

	var svc *dispatchservice.Dispatcher
	hub := broadcast.NewHub(observability.Component(logger, "hub"), func() any { return svc.State() })
	publisher := broadcast.Fanout{hub, broadcast.NewNATSPublisher(natsConn, "dispatch.events")}

	svc = dispatchservice.New(
		ledger.New(domain.SystemClock{}),
		accountLedger,
		publisher,
		provider,
		domain.SystemClock{},
		observability.Component(logger, "dispatch"),
		domain.AwardPolicy{StandardPoints: cfg.AwardPoints, BulkRate: cfg.AwardBulkRate},
		dispatchservice.Config{
			ArrivalRadiusM: cfg.ArrivalRadiusM,
			SnapTimeout:    cfg.SnapTimeout,
			AvgSpeedKMH:    cfg.AvgSpeedKMH,
		},
	)

	var guard func(http.Handler) http.Handler
	if cfg.JWTSecret != "" {
		guard = auth.Middleware(cfg.JWTSecret, auth.RoleCollector, auth.RoleAdmin)
	}

	limiter := ratelimitmw.NewThrottle(redisClient, cfg.RateAPI, cfg.RatePosition)

	r := chi.NewRouter()
	if limiter != nil {
		r.Use(limiter.Middleware)
	}
	r.Mount("/", handler.NewHTTP(svc, hub, guard).Router())
	r.Mount("/observability", observability.MetricsRouter(func() map[string]any {
		return map[string]any{
			"ws_clients":    hub.ClientCount(),
			"postgres":      cfg.PostgresDSN != "",
			"nats":          natsConn != nil,
			"road_snapping": provider != nil,
		}
	}))

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go runGRPC(logger, cfg.GRPCAddr, svc)

	go func() {
		logger.Info("dispatch service listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("http server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

func runGRPC(logger *zap.Logger, addr string, svc *dispatchservice.Dispatcher) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		logger.Fatal("listen grpc", zap.Error(err))
	}

	srv := grpc.NewServer()
	track.RegisterTrackServer(srv, track.NewServer(svc))
	logger.Info("track grpc listening", zap.String("addr", lis.Addr().String()))
	if err := srv.Serve(lis); err != nil {
		logger.Fatal("grpc serve", zap.Error(err))
	}
}

func loadConfig() appConfig {
	return appConfig{
		HTTPAddr:       getenv("HTTP_ADDR", ":8080"),
		GRPCAddr:       getenv("GRPC_ADDR", ":9090"),
		PostgresDSN:    firstNonEmpty(os.Getenv("POSTGRES_DSN"), os.Getenv("DATABASE_URL")),
		RedisAddr:      os.Getenv("REDIS_ADDR"),
		NATSURL:        os.Getenv("NATS_URL"),
		OSRMURL:        os.Getenv("OSRM_URL"),
		JWTSecret:      os.Getenv("DISPATCH_JWT_SECRET"),
		ArrivalRadiusM: parseFloatEnv("ARRIVAL_RADIUS_M", 50),
		AvgSpeedKMH:    parseFloatEnv("AVG_SPEED_KMH", 30),
		SnapTimeout:    time.Duration(parseIntEnv("SNAP_TIMEOUT_MS", 2000)) * time.Millisecond,
		AwardPoints:    parseIntEnv("AWARD_POINTS", 10),
		AwardBulkRate:  parseFloatEnv("AWARD_BULK_RATE", 0.05),
		RateAPI: ratelimitmw.RateConfig{
			Rate:  parseFloatEnv("RATE_API_RPS", 20),
			Burst: parseFloatEnv("RATE_API_BURST", 40),
		},
		RatePosition: ratelimitmw.RateConfig{
			Rate:  parseFloatEnv("RATE_POSITION_RPS", 50),
			Burst: parseFloatEnv("RATE_POSITION_BURST", 100),
		},
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func parseIntEnv(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return fallback
}

func parseFloatEnv(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			return parsed
		}
	}
	return fallback
}
