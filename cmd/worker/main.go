package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"
	redis "github.com/redis/go-redis/v9"

	"post-drip-bot/internal/adapters/notifier"
	"post-drip-bot/internal/adapters/repo"
	"post-drip-bot/internal/domain"
	"post-drip-bot/internal/infra/clock"
	"post-drip-bot/internal/infra/config"
	"post-drip-bot/internal/infra/db"
	applog "post-drip-bot/internal/infra/log"
	"post-drip-bot/internal/infra/metrics"
	"post-drip-bot/internal/infra/queue"
	"post-drip-bot/internal/usecase/planner"
)

// worker забирает задания из очереди и выполняет запуски планирования.
// Запуски сериализуются самим воркером: одна горутина, одна задача за раз.
func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.StartServer(ctx, logger.With().Str("component", "metrics").Logger(), cfg.MetricsAddr)

	pool, err := db.Connect(cfg.PGDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: нет подключения к БД")
	}
	defer pool.Close()

	sysClock, err := clock.NewSystem(cfg.TZ)
	if err != nil {
		logger.Fatal().Err(err).Str("tz", cfg.TZ).Msg("worker: неизвестный часовой пояс")
	}

	repoAdapter := repo.NewPostgres(pool)
	svc := planner.NewService(repoAdapter, repoAdapter, repoAdapter, sysClock, nil, logger.With().Str("component", "planner").Logger())

	var jobs domain.RunQueue
	if cfg.Queue.Backend == "rabbitmq" {
		rabbit, err := queue.NewRabbitRunQueue(cfg.RabbitURL, cfg.Queue.RunsKey)
		if err != nil {
			logger.Fatal().Err(err).Msg("worker: нет подключения к RabbitMQ")
		}
		defer rabbit.Close()
		jobs = rabbit
	} else {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		jobs = queue.NewRedisRunQueue(redisClient, cfg.Queue.RunsKey)
	}

	var runNotifier domain.RunNotifier
	if cfg.Telegram.Token != "" && cfg.Telegram.AdminChatID != 0 {
		bot, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
		if err != nil {
			logger.Fatal().Err(err).Msg("worker: не удалось создать Telegram бота")
		}
		runNotifier = notifier.NewTelegram(bot, cfg.Telegram.AdminChatID, logger.With().Str("component", "notifier").Logger())
	}

	logger.Info().Str("backend", cfg.Queue.Backend).Msg("worker: старт")
	for {
		job, ack, err := jobs.Receive(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				logger.Info().Msg("worker: остановка")
				return
			}
			logger.Error().Err(err).Msg("worker: ошибка получения задачи")
			continue
		}

		logger.Info().Str("job_id", job.ID).Str("cause", string(job.Cause)).Msg("worker: запуск планирования")
		result := svc.RunSchedule(ctx, job.Cause)
		if ackErr := ack(true); ackErr != nil {
			logger.Error().Err(ackErr).Str("job_id", job.ID).Msg("worker: не удалось подтвердить задачу")
		}

		if runNotifier != nil {
			if err := runNotifier.NotifyRun(ctx, result); err != nil {
				logger.Error().Err(err).Str("job_id", job.ID).Msg("worker: не удалось отправить отчёт")
			}
		}
	}
}
