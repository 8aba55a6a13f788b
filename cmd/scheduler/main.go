package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	redis "github.com/redis/go-redis/v9"

	"post-drip-bot/internal/domain"
	"post-drip-bot/internal/infra/cache"
	"post-drip-bot/internal/infra/config"
	applog "post-drip-bot/internal/infra/log"
	"post-drip-bot/internal/infra/metrics"
	"post-drip-bot/internal/infra/queue"
)

// scheduler — фоновый триггер: раз в период кладёт в очередь задание на
// плановый запуск. Защита от дублей между репликами — блокировка в Redis
// по ключу текущего периода.
func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.StartServer(ctx, logger.With().Str("component", "metrics").Logger(), cfg.MetricsAddr)

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	locker := cache.NewRedisLocker(redisClient)

	jobs, err := buildQueue(cfg, redisClient)
	if err != nil {
		logger.Fatal().Err(err).Msg("scheduler: нет подключения к очереди")
	}

	cadence := cfg.Schedule.Cadence
	trigger := func() {
		slot := time.Now().UTC().Truncate(cadence).Unix()
		key := fmt.Sprintf("drip_run_trigger:%d", slot)
		err := locker.Once(key, cadence, func() error {
			job := domain.RunJob{
				ID:          uuid.NewString(),
				Cause:       domain.RunCauseScheduled,
				RequestedAt: time.Now().UTC(),
			}
			return jobs.Enqueue(ctx, job)
		})
		if err != nil {
			logger.Error().Err(err).Msg("scheduler: не удалось поставить запуск в очередь")
			return
		}
		logger.Info().Int64("slot", slot).Msg("scheduler: запуск поставлен в очередь")
	}

	trigger()

	ticker := time.NewTicker(cadence)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("scheduler: остановка")
			return
		case <-ticker.C:
			trigger()
		}
	}
}

func buildQueue(cfg config.AppConfig, redisClient *redis.Client) (domain.RunQueue, error) {
	if cfg.Queue.Backend == "rabbitmq" {
		return queue.NewRabbitRunQueue(cfg.RabbitURL, cfg.Queue.RunsKey)
	}
	return queue.NewRedisRunQueue(redisClient, cfg.Queue.RunsKey), nil
}
