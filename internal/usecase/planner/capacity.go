package planner

import "fmt"

// SuggestionKind различает варианты исправления недостаточной ёмкости.
type SuggestionKind string

const (
	// SuggestShrinkInterval — уменьшить минимальный интервал между публикациями.
	SuggestShrinkInterval SuggestionKind = "shrink_interval"
	// SuggestLowerQuota — снизить дневную квоту до достижимой ёмкости.
	SuggestLowerQuota SuggestionKind = "lower_quota"
	// SuggestExtendWindow — расширить окно публикаций.
	SuggestExtendWindow SuggestionKind = "extend_window"
)

// Suggestion — машинно-применимая рекомендация: помимо текста несёт готовое
// значение на замену, чтобы вызывающий мог применить её без разбора строк.
type Suggestion struct {
	Kind      SuggestionKind `json:"kind"`
	Message   string         `json:"message"`
	Interval  int            `json:"interval_minutes,omitempty"`
	Quota     int            `json:"quota,omitempty"`
	StartTime string         `json:"start_time,omitempty"`
	EndTime   string         `json:"end_time,omitempty"`
}

// Estimate — итог оценки ёмкости окна.
type Estimate struct {
	Valid       bool         `json:"valid"`
	Reason      string       `json:"reason,omitempty"`
	Theoretical int          `json:"theoretical"`
	Capacity    int          `json:"capacity"`
	MeetsQuota  bool         `json:"meets_quota"`
	Suggestions []Suggestion `json:"suggestions,omitempty"`
}

// efficiencyBands — эмпирическая поправка на то, что случайная расстановка не
// достигает плотности последовательной упаковки: крупные интервалы пакуются
// предсказуемее мелких. Таблица — настраиваемая политика, а не инвариант.
var efficiencyBands = []struct {
	MinInterval int
	Factor      float64
}{
	{60, 0.70},
	{30, 0.65},
	{20, 0.55},
	{0, 0.50},
}

func efficiencyFor(interval int) float64 {
	for _, band := range efficiencyBands {
		if interval >= band.MinInterval {
			return band.Factor
		}
	}
	return efficiencyBands[len(efficiencyBands)-1].Factor
}

// smallCapacityThreshold: при совсем малой теоретической ёмкости процентная
// поправка слишком груба, вместо неё вычитается один слот.
const smallCapacityThreshold = 3

// EstimateCapacity оценивает, сколько записей реально поместится в окно при
// случайной расстановке, и при нехватке ёмкости формирует рекомендации.
func EstimateCapacity(start, end string, interval, quota int) Estimate {
	if interval < 1 {
		return Estimate{Reason: "минимальный интервал должен быть не меньше одной минуты"}
	}
	if quota < 1 {
		return Estimate{Reason: "дневная квота должна быть не меньше одной записи"}
	}
	window, err := WindowMinutes(start, end)
	if err != nil {
		return Estimate{Reason: err.Error()}
	}
	if window <= 0 {
		return Estimate{Reason: "конец окна должен быть позже начала"}
	}

	theoretical := window / interval
	eff := efficiencyFor(interval)

	var capacity int
	if theoretical <= smallCapacityThreshold {
		capacity = theoretical - 1
	} else {
		capacity = int(float64(theoretical) * eff)
	}
	if capacity < 1 {
		capacity = 1
	}

	est := Estimate{
		Valid:       true,
		Theoretical: theoretical,
		Capacity:    capacity,
		MeetsQuota:  capacity >= quota,
	}
	if !est.MeetsQuota {
		est.Suggestions = buildSuggestions(start, window, interval, quota, capacity, eff)
	}
	return est
}

// buildSuggestions собирает рекомендации в порядке предпочтения: сжать
// интервал, снизить квоту, расширить окно (сначала сдвигая конец, при
// упоре в 23:59 — начало).
func buildSuggestions(start string, window, interval, quota, capacity int, eff float64) []Suggestion {
	var suggestions []Suggestion

	// Теоретическая ёмкость, при которой после поправки достижима квота.
	targetTheoretical := int(float64(quota)/eff + 0.999999)
	if targetTheoretical < quota {
		targetTheoretical = quota
	}

	if newInterval := window / targetTheoretical; newInterval >= 1 && newInterval < interval {
		suggestions = append(suggestions, Suggestion{
			Kind:     SuggestShrinkInterval,
			Message:  fmt.Sprintf("уменьшите интервал до %d мин, чтобы %d записей поместились в текущее окно", newInterval, quota),
			Interval: newInterval,
		})
	}

	suggestions = append(suggestions, Suggestion{
		Kind:    SuggestLowerQuota,
		Message: fmt.Sprintf("снизьте дневную квоту до %d записей", capacity),
		Quota:   capacity,
	})

	startMin, err := ToMinutes(start)
	if err != nil {
		return suggestions
	}
	needed := targetTheoretical * interval
	if newEnd := startMin + needed; newEnd <= EndOfDayMinutes {
		suggestions = append(suggestions, Suggestion{
			Kind:    SuggestExtendWindow,
			Message: fmt.Sprintf("продлите окно до %s", FromMinutes(newEnd)),
			EndTime: FromMinutes(newEnd),
		})
	} else if newStart := EndOfDayMinutes - needed; newStart >= 0 {
		// Конец упёрся в 23:59 — двигаем начало раньше.
		suggestions = append(suggestions, Suggestion{
			Kind:      SuggestExtendWindow,
			Message:   fmt.Sprintf("сдвиньте окно: с %s до %s", FromMinutes(newStart), FromMinutes(EndOfDayMinutes)),
			StartTime: FromMinutes(newStart),
			EndTime:   FromMinutes(EndOfDayMinutes),
		})
	}
	return suggestions
}
