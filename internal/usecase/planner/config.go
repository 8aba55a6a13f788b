package planner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"post-drip-bot/internal/domain"
)

const optionConfig = "drip_config"

// ErrInvalidConfig помечает ошибки конфигурации: они обнаруживаются до того,
// как запуск успел тронуть хоть одну запись.
var ErrInvalidConfig = errors.New("некорректная конфигурация планирования")

// runConfig — проверенная конфигурация запуска с разобранными границами окна.
type runConfig struct {
	domain.SchedulingConfig
	startMin int
	endMin   int
	active   map[time.Weekday]bool
}

// LoadConfig читает сохранённую конфигурацию планирования. Отсутствующая
// опция означает конфигурацию по умолчанию.
func LoadConfig(ctx context.Context, opts domain.OptionRepo) (domain.SchedulingConfig, error) {
	cfg := domain.DefaultSchedulingConfig()
	raw, ok, err := opts.GetOption(ctx, optionConfig)
	if err != nil {
		return cfg, fmt.Errorf("чтение конфигурации: %w", err)
	}
	if !ok || raw == "" {
		return cfg, nil
	}
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		return cfg, fmt.Errorf("разбор конфигурации: %w", err)
	}
	return cfg, nil
}

// SaveConfig проверяет и сохраняет конфигурацию планирования.
func SaveConfig(ctx context.Context, opts domain.OptionRepo, cfg domain.SchedulingConfig) error {
	if _, err := prepareConfig(cfg); err != nil {
		return err
	}
	payload, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("сериализация конфигурации: %w", err)
	}
	if err := opts.SetOption(ctx, optionConfig, string(payload)); err != nil {
		return fmt.Errorf("сохранение конфигурации: %w", err)
	}
	return nil
}

// prepareConfig валидирует конфигурацию и разбирает границы окна. Все ошибки
// конфигурации всплывают отсюда, до каких-либо побочных эффектов.
func prepareConfig(cfg domain.SchedulingConfig) (runConfig, error) {
	if cfg.PostsPerDay < 1 {
		return runConfig{}, fmt.Errorf("%w: дневная квота должна быть не меньше 1", ErrInvalidConfig)
	}
	if cfg.MinIntervalMinutes < 1 {
		return runConfig{}, fmt.Errorf("%w: минимальный интервал должен быть не меньше 1 минуты", ErrInvalidConfig)
	}
	if cfg.MonitoredStatus == "" {
		cfg.MonitoredStatus = domain.PostStatusDraft
	}

	startMin, err := ToMinutes(cfg.StartTime)
	if err != nil {
		return runConfig{}, fmt.Errorf("%w: начало окна: %v", ErrInvalidConfig, err)
	}
	endMin, err := ToMinutes(cfg.EndTime)
	if err != nil {
		return runConfig{}, fmt.Errorf("%w: конец окна: %v", ErrInvalidConfig, err)
	}
	window := endMin - startMin
	if window <= 0 {
		return runConfig{}, fmt.Errorf("%w: конец окна должен быть позже начала", ErrInvalidConfig)
	}
	if !Feasible(window, cfg.MinIntervalMinutes, cfg.PostsPerDay) {
		return runConfig{}, fmt.Errorf("%w: %d записей с интервалом %d мин не помещаются в окно длиной %d мин",
			ErrInvalidConfig, cfg.PostsPerDay, cfg.MinIntervalMinutes, window)
	}

	days := cfg.ActiveWeekdays
	if len(days) == 0 {
		days = domain.DefaultActiveWeekdays
	}
	active := WeekdaySet(days)
	if len(active) == 0 {
		active = WeekdaySet(domain.DefaultActiveWeekdays)
	}

	return runConfig{SchedulingConfig: cfg, startMin: startMin, endMin: endMin, active: active}, nil
}
