package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	RunsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "drip_runs_total",
		Help: "Количество запусков планирования",
	}, []string{"cause", "status"})

	RunDurationSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "drip_run_duration_seconds",
		Help:    "Длительность одного запуска планирования",
		Buckets: prometheus.DefBuckets,
	}, []string{"cause"})

	ScheduledPostsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "drip_scheduled_posts_total",
		Help: "Количество успешно запланированных записей",
	})

	PlacementFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "drip_placement_failures_total",
		Help: "Исчерпания бюджета подбора случайного слота",
	})

	PersistenceFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "drip_persistence_failures_total",
		Help: "Сбои сохранения записи или неподтверждённый статус",
	})

	DeficitOutstanding = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "drip_deficit_outstanding",
		Help: "Суммарный незакрытый недобор по всем датам",
	})

	NotifySendErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "drip_notify_errors_total",
		Help: "Ошибки отправки уведомлений об итогах запуска",
	})

	NetworkRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "network_request_duration_seconds",
		Help:    "Длительность сетевых запросов",
		Buckets: prometheus.DefBuckets,
	}, []string{"component", "operation", "target", "status"})

	NetworkRequestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "network_request_total",
		Help: "Количество сетевых запросов",
	}, []string{"component", "operation", "target", "status"})
)

// MustRegister регистрирует метрики.
func MustRegister(registerer prometheus.Registerer) {
	registerer.MustRegister(
		RunsTotal,
		RunDurationSeconds,
		ScheduledPostsTotal,
		PlacementFailuresTotal,
		PersistenceFailuresTotal,
		DeficitOutstanding,
		NotifySendErrors,
		NetworkRequestDuration,
		NetworkRequestTotal,
	)
}

// ObserveRun фиксирует завершение запуска планирования.
func ObserveRun(cause, status string, duration time.Duration) {
	if cause == "" {
		cause = "unknown"
	}
	if status == "" {
		status = "unknown"
	}
	RunsTotal.WithLabelValues(cause, status).Inc()
	RunDurationSeconds.WithLabelValues(cause).Observe(duration.Seconds())
}

// AddScheduledPosts увеличивает счётчик запланированных записей.
func AddScheduledPosts(n int) {
	if n > 0 {
		ScheduledPostsTotal.Add(float64(n))
	}
}

// IncPlacementFailure фиксирует исчерпание бюджета подбора слота.
func IncPlacementFailure() {
	PlacementFailuresTotal.Inc()
}

// IncPersistenceFailure фиксирует сбой сохранения записи.
func IncPersistenceFailure() {
	PersistenceFailuresTotal.Inc()
}

// SetDeficitOutstanding обновляет гейдж суммарного недобора.
func SetDeficitOutstanding(total int) {
	DeficitOutstanding.Set(float64(total))
}

// ObserveNetworkRequest записывает длительность и статус сетевого запроса.
func ObserveNetworkRequest(component, operation, target string, start time.Time, err error) {
	if component == "" {
		component = "unknown"
	}
	if operation == "" {
		operation = "unknown"
	}
	if target == "" {
		target = "unknown"
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	duration := time.Since(start).Seconds()
	NetworkRequestDuration.WithLabelValues(component, operation, target, status).Observe(duration)
	NetworkRequestTotal.WithLabelValues(component, operation, target, status).Inc()
}

// StartServer запускает HTTP сервер с эндпоинтом /metrics.
func StartServer(ctx context.Context, logger zerolog.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	shutdownCtx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-ctx.Done():
		case <-shutdownCtx.Done():
		}
		shutdownTimeout, timeoutCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer timeoutCancel()
		if err := srv.Shutdown(shutdownTimeout); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: graceful shutdown failed")
		}
	}()

	go func() {
		logger.Info().Str("addr", addr).Msg("metrics: server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: server stopped")
		}
		cancel()
	}()
}
