package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"post-drip-bot/internal/domain"
)

const (
	optionDeficits = "drip_deficits"
	// deficitRetentionDays ограничивает срок хранения недоборов, чтобы карта
	// не росла бесконечно. Чистка выполняется при каждом сохранении.
	deficitRetentionDays = 30

	dateLayout = "2006-01-02"

	deficitSaveAttempts = 3
)

// DeficitEntry — недобор за один календарный день.
type DeficitEntry struct {
	Date      string `json:"date"`
	Shortfall int    `json:"shortfall"`
}

// DeficitLedger хранит карту «дата → недобор до квоты» в хранилище опций.
// Загружается в начале запуска, изменяется в памяти и сохраняется в конце;
// между запусками в памяти ничего не кэшируется.
type DeficitLedger struct {
	opts  domain.OptionRepo
	clock domain.Clock

	entries   map[string]int
	touched   map[string]bool
	loadedRaw string
}

// NewDeficitLedger создаёт журнал недоборов поверх хранилища опций.
func NewDeficitLedger(opts domain.OptionRepo, clock domain.Clock) *DeficitLedger {
	return &DeficitLedger{
		opts:    opts,
		clock:   clock,
		entries: map[string]int{},
		touched: map[string]bool{},
	}
}

// Load читает сохранённую карту недоборов.
func (l *DeficitLedger) Load(ctx context.Context) error {
	raw, ok, err := l.opts.GetOption(ctx, optionDeficits)
	if err != nil {
		return fmt.Errorf("чтение недоборов: %w", err)
	}
	l.entries = map[string]int{}
	l.touched = map[string]bool{}
	l.loadedRaw = ""
	if !ok || raw == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(raw), &l.entries); err != nil {
		return fmt.Errorf("разбор недоборов: %w", err)
	}
	l.loadedRaw = raw
	return nil
}

// Record пересчитывает (не накапливает) недобор за дату. Неположительный
// недобор снимает запись; будущие даты не фиксируются — они ещё не наступили.
func (l *DeficitLedger) Record(date time.Time, shortfall int) {
	key := date.Format(dateLayout)
	today := l.clock.Now().Format(dateLayout)
	if key > today {
		return
	}
	l.touched[key] = true
	if shortfall <= 0 {
		delete(l.entries, key)
		return
	}
	l.entries[key] = shortfall
}

// Clear снимает недобор за дату.
func (l *DeficitLedger) Clear(date time.Time) {
	l.ClearKey(date.Format(dateLayout))
}

// ClearKey снимает недобор по сырому ключу. Нужен для вычистки записей,
// чья дата не разбирается.
func (l *DeficitLedger) ClearKey(key string) {
	l.touched[key] = true
	delete(l.entries, key)
}

// Total возвращает суммарный недобор по всем датам.
func (l *DeficitLedger) Total() int {
	total := 0
	for _, v := range l.entries {
		total += v
	}
	return total
}

// OldestFirst возвращает недоборы в порядке возрастания дат: добор всегда
// начинается с самых старых пропусков независимо от порядка их появления.
func (l *DeficitLedger) OldestFirst() []DeficitEntry {
	out := make([]DeficitEntry, 0, len(l.entries))
	for date, shortfall := range l.entries {
		out = append(out, DeficitEntry{Date: date, Shortfall: shortfall})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out
}

// Save чистит устаревшие записи и сохраняет карту. Обновление идёт через
// compare-and-swap: при конфликте чужие изменения перечитываются, поверх них
// повторно применяются наши правки. После исчерпания попыток выполняется
// обычная запись — гонка «последний победил» принимается осознанно.
func (l *DeficitLedger) Save(ctx context.Context) error {
	l.prune()

	for attempt := 0; attempt < deficitSaveAttempts; attempt++ {
		payload, err := json.Marshal(l.entries)
		if err != nil {
			return fmt.Errorf("сериализация недоборов: %w", err)
		}
		if l.loadedRaw == "" {
			if err := l.opts.SetOption(ctx, optionDeficits, string(payload)); err != nil {
				return fmt.Errorf("сохранение недоборов: %w", err)
			}
			l.loadedRaw = string(payload)
			return nil
		}
		ok, err := l.opts.CompareAndSwapOption(ctx, optionDeficits, l.loadedRaw, string(payload))
		if err != nil {
			return fmt.Errorf("сохранение недоборов: %w", err)
		}
		if ok {
			l.loadedRaw = string(payload)
			return nil
		}
		if err := l.reloadAndReplay(ctx); err != nil {
			return err
		}
	}

	payload, err := json.Marshal(l.entries)
	if err != nil {
		return fmt.Errorf("сериализация недоборов: %w", err)
	}
	if err := l.opts.SetOption(ctx, optionDeficits, string(payload)); err != nil {
		return fmt.Errorf("сохранение недоборов: %w", err)
	}
	l.loadedRaw = string(payload)
	return nil
}

// reloadAndReplay перечитывает карту и накладывает наши правки поверх чужих.
func (l *DeficitLedger) reloadAndReplay(ctx context.Context) error {
	ours := l.entries
	touched := l.touched
	if err := l.Load(ctx); err != nil {
		return err
	}
	for key := range touched {
		if value, ok := ours[key]; ok {
			l.entries[key] = value
		} else {
			delete(l.entries, key)
		}
	}
	l.touched = touched
	l.prune()
	return nil
}

func (l *DeficitLedger) prune() {
	cutoff := l.clock.Now().AddDate(0, 0, -deficitRetentionDays).Format(dateLayout)
	for date := range l.entries {
		if date < cutoff {
			delete(l.entries, date)
		}
	}
}
