package planner

import "math/rand"

// Бюджет повторных попыток растёт вместе с количеством уже занятых слотов:
// чем плотнее заполнен день, тем выше вероятность коллизии случайной минуты.
const (
	slotRetryBase    = 20
	slotRetryPerUsed = 15
)

// Feasible аналитически проверяет, помещаются ли count слотов с минимальным
// интервалом interval в окно длиной windowMinutes. Ошибка конфигурации
// обнаруживается здесь, до расходования бюджета случайных попыток.
func Feasible(windowMinutes, interval, count int) bool {
	if windowMinutes <= 0 || interval <= 0 || count <= 0 {
		return false
	}
	return (count-1)*interval < windowMinutes
}

// GenerateSlot подбирает случайную минуту в [windowStart, windowEnd), отстоящую
// от каждой занятой минуты не меньше чем на minInterval. Возвращает false при
// исчерпании бюджета попыток: для вызывающего это «сегодня мест нет, переходи
// к следующему активному дню», а не фатальная ошибка.
func GenerateSlot(rng *rand.Rand, windowStart, windowEnd, minInterval int, used []int) (int, bool) {
	width := windowEnd - windowStart
	if width <= 0 {
		return 0, false
	}

	budget := slotRetryBase + slotRetryPerUsed*len(used)
	for attempt := 0; attempt < budget; attempt++ {
		candidate := windowStart + rng.Intn(width)
		if slotFits(candidate, minInterval, used) {
			return candidate, true
		}
	}
	return 0, false
}

func slotFits(candidate, minInterval int, used []int) bool {
	for _, u := range used {
		diff := candidate - u
		if diff < 0 {
			diff = -diff
		}
		if diff < minInterval {
			return false
		}
	}
	return true
}
