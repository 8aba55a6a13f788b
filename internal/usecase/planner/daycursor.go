package planner

import "time"

// maxDayWalk ограничивает перебор дней вперёд, чтобы гарантировать завершение
// даже при противоречивом наборе активных дней.
const maxDayWalk = 14

// WeekdaySet переводит список номеров дней (воскресенье = 0) в множество.
// Пустой список заменяется набором по умолчанию на стороне конфигурации,
// сюда он попадать не должен; на всякий случай пустое множество не строится.
func WeekdaySet(days []int) map[time.Weekday]bool {
	set := make(map[time.Weekday]bool, len(days))
	for _, d := range days {
		if d >= 0 && d <= 6 {
			set[time.Weekday(d)] = true
		}
	}
	return set
}

// NextActiveDate возвращает ближайший день после from, чей день недели входит
// в active. При исчерпании перебора возвращается детерминированный сдвиг на
// один день вместо бесконечного цикла.
func NextActiveDate(from time.Time, active map[time.Weekday]bool) time.Time {
	day := truncateToDay(from)
	for i := 1; i <= maxDayWalk; i++ {
		candidate := day.AddDate(0, 0, i)
		if active[candidate.Weekday()] {
			return candidate
		}
	}
	return day.AddDate(0, 0, 1)
}

// TodayUsable отвечает, можно ли ещё планировать на сегодня: день недели
// активен, квота не выбрана и в остатке окна — от позднейшего из «сейчас +
// буфер» и начала окна — есть минута, отстоящая от уже занятых не меньше
// чем на минимальный интервал.
func TodayUsable(now time.Time, active map[time.Weekday]bool, startMin, endMin, safetyBufferMin, minInterval int, used []int, quota int) bool {
	if !active[now.Weekday()] {
		return false
	}
	if len(used) >= quota {
		return false
	}
	nowMin := now.Hour()*60 + now.Minute() + safetyBufferMin
	effectiveStart := startMin
	if nowMin > effectiveStart {
		effectiveStart = nowMin
	}
	for m := effectiveStart; m < endMin; m++ {
		if slotFits(m, minInterval, used) {
			return true
		}
	}
	return false
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
