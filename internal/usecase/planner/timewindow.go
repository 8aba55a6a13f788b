package planner

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// MinutesPerDay — количество минут в сутках; все смещения лежат в [0, MinutesPerDay).
const MinutesPerDay = 24 * 60

// EndOfDayMinutes — жёсткий потолок конца окна (23:59).
const EndOfDayMinutes = MinutesPerDay - 1

// ErrBadTime возвращается, если строку времени не удалось разобрать.
// Вызывающий обязан подставить запасное значение явно: нулевое смещение
// как признак успеха здесь не используется.
var ErrBadTime = errors.New("не удалось разобрать время")

// ToMinutes переводит строку 12-часового формата («9:05 PM») в смещение
// в минутах от полуночи. Меридием нечувствителен к регистру.
func ToMinutes(s string) (int, error) {
	fields := strings.Fields(strings.TrimSpace(s))
	if len(fields) != 2 {
		return 0, fmt.Errorf("%w: %q", ErrBadTime, s)
	}

	var meridiem string
	switch strings.ToUpper(fields[1]) {
	case "AM":
		meridiem = "AM"
	case "PM":
		meridiem = "PM"
	default:
		return 0, fmt.Errorf("%w: %q", ErrBadTime, s)
	}

	hhmm := strings.SplitN(fields[0], ":", 2)
	if len(hhmm) != 2 {
		return 0, fmt.Errorf("%w: %q", ErrBadTime, s)
	}
	hour, err := strconv.Atoi(hhmm[0])
	if err != nil || hour < 1 || hour > 12 {
		return 0, fmt.Errorf("%w: %q", ErrBadTime, s)
	}
	minute, err := strconv.Atoi(hhmm[1])
	if err != nil || len(hhmm[1]) != 2 || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("%w: %q", ErrBadTime, s)
	}

	if hour == 12 {
		hour = 0
	}
	if meridiem == "PM" {
		hour += 12
	}
	return hour*60 + minute, nil
}

// FromMinutes переводит смещение в минутах обратно в строку 12-часового
// формата. Минуты дополняются нулём, чтобы ToMinutes(FromMinutes(m)) == m.
func FromMinutes(m int) string {
	m %= MinutesPerDay
	if m < 0 {
		m += MinutesPerDay
	}
	hour := m / 60
	minute := m % 60
	meridiem := "AM"
	if hour >= 12 {
		meridiem = "PM"
	}
	hour %= 12
	if hour == 0 {
		hour = 12
	}
	return fmt.Sprintf("%d:%02d %s", hour, minute, meridiem)
}

// WindowMinutes возвращает длину окна в минутах. Неположительный результат
// означает некорректное окно: планирование такого дня должно быть остановлено
// с явной ошибкой, а не с падением.
func WindowMinutes(start, end string) (int, error) {
	startMin, err := ToMinutes(start)
	if err != nil {
		return 0, fmt.Errorf("начало окна: %w", err)
	}
	endMin, err := ToMinutes(end)
	if err != nil {
		return 0, fmt.Errorf("конец окна: %w", err)
	}
	return endMin - startMin, nil
}
