package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	redis "github.com/redis/go-redis/v9"

	"post-drip-bot/internal/adapters/repo"
	"post-drip-bot/internal/domain"
	"post-drip-bot/internal/infra/clock"
	"post-drip-bot/internal/infra/config"
	"post-drip-bot/internal/infra/db"
	httpinfra "post-drip-bot/internal/infra/http"
	applog "post-drip-bot/internal/infra/log"
	"post-drip-bot/internal/infra/metrics"
	"post-drip-bot/internal/infra/queue"
	"post-drip-bot/internal/usecase/planner"
)

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(cfg.PGDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: нет подключения к БД")
	}
	defer pool.Close()

	sysClock, err := clock.NewSystem(cfg.TZ)
	if err != nil {
		logger.Fatal().Err(err).Str("tz", cfg.TZ).Msg("api: неизвестный часовой пояс")
	}

	repoAdapter := repo.NewPostgres(pool)
	svc := planner.NewService(repoAdapter, repoAdapter, repoAdapter, sysClock, nil, logger.With().Str("component", "planner").Logger())

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	var jobs domain.RunQueue
	if cfg.Queue.Backend == "rabbitmq" {
		rabbit, err := queue.NewRabbitRunQueue(cfg.RabbitURL, cfg.Queue.RunsKey)
		if err != nil {
			logger.Fatal().Err(err).Msg("api: нет подключения к RabbitMQ")
		}
		defer rabbit.Close()
		jobs = rabbit
	} else {
		jobs = queue.NewRedisRunQueue(redisClient, cfg.Queue.RunsKey)
	}

	srv := httpinfra.NewServer(logger.With().Str("component", "http").Logger())
	r := srv.Router

	r.Post("/api/v1/schedule/run", func(w http.ResponseWriter, req *http.Request) {
		job := domain.RunJob{
			ID:          uuid.NewString(),
			Cause:       domain.RunCauseManual,
			RequestedAt: time.Now().UTC(),
		}
		if err := jobs.Enqueue(req.Context(), job); err != nil {
			logger.Error().Err(err).Msg("api: не удалось поставить запуск в очередь")
			writeError(w, http.StatusInternalServerError, "очередь недоступна")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(map[string]string{"job_id": job.ID})
	})

	r.Get("/api/v1/schedule/preview", func(w http.ResponseWriter, req *http.Request) {
		stored, err := planner.LoadConfig(req.Context(), repoAdapter)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "не удалось загрузить настройки")
			return
		}
		start := queryOr(req, "start_time", stored.StartTime)
		end := queryOr(req, "end_time", stored.EndTime)
		interval := queryIntOr(req, "min_interval_minutes", stored.MinIntervalMinutes)
		quota := queryIntOr(req, "posts_per_day", stored.PostsPerDay)
		writeJSON(w, planner.EstimateCapacity(start, end, interval, quota))
	})

	r.Get("/api/v1/schedule/config", func(w http.ResponseWriter, req *http.Request) {
		stored, err := planner.LoadConfig(req.Context(), repoAdapter)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "не удалось загрузить настройки")
			return
		}
		writeJSON(w, stored)
	})

	r.Put("/api/v1/schedule/config", func(w http.ResponseWriter, req *http.Request) {
		defer req.Body.Close()
		incoming := domain.DefaultSchedulingConfig()
		if err := json.NewDecoder(req.Body).Decode(&incoming); err != nil {
			writeError(w, http.StatusBadRequest, "некорректное тело запроса")
			return
		}
		if err := planner.SaveConfig(req.Context(), repoAdapter, incoming); err != nil {
			if errors.Is(err, planner.ErrInvalidConfig) {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			writeError(w, http.StatusInternalServerError, "не удалось сохранить настройки")
			return
		}
		writeJSON(w, incoming)
	})

	r.Get("/api/v1/schedule/deficits", func(w http.ResponseWriter, req *http.Request) {
		entries, err := svc.Deficits(req.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "не удалось загрузить дефициты")
			return
		}
		if entries == nil {
			entries = []planner.DeficitEntry{}
		}
		writeJSON(w, map[string]any{"deficits": entries})
	})

	r.Get("/api/v1/schedule/status", func(w http.ResponseWriter, req *http.Request) {
		raw, ok, err := svc.LastRun(req.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "не удалось загрузить статус")
			return
		}
		if !ok {
			writeJSON(w, map[string]any{"last_run": nil})
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"last_run":` + raw + `}`))
	})

	go func() {
		if err := srv.Start(cfg.HTTPAddr); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("api: сервер остановлен")
		}
	}()

	metrics.StartServer(ctx, logger.With().Str("component", "metrics").Logger(), cfg.MetricsAddr)

	<-ctx.Done()
	logger.Info().Msg("api: остановка")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

func queryOr(req *http.Request, key, fallback string) string {
	if v := req.URL.Query().Get(key); v != "" {
		return v
	}
	return fallback
}

func queryIntOr(req *http.Request, key string, fallback int) int {
	v := req.URL.Query().Get(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"error": msg})
}
