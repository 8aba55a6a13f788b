package planner

import "testing"

func TestEstimateCapacityMeetsQuota(t *testing.T) {
	est := EstimateCapacity("9:00 AM", "6:00 PM", 60, 5)
	if !est.Valid {
		t.Fatalf("не ожидали ошибку: %s", est.Reason)
	}
	if est.Theoretical != 9 {
		t.Fatalf("ожидали теоретическую ёмкость 9, получили %d", est.Theoretical)
	}
	if est.Capacity != 6 {
		t.Fatalf("ожидали ёмкость 6, получили %d", est.Capacity)
	}
	if !est.MeetsQuota {
		t.Fatalf("квота 5 должна помещаться")
	}
	if len(est.Suggestions) != 0 {
		t.Fatalf("при достаточной ёмкости рекомендации не нужны")
	}
}

func TestEstimateCapacitySuggestions(t *testing.T) {
	est := EstimateCapacity("9:00 AM", "6:00 PM", 60, 8)
	if !est.Valid || est.MeetsQuota {
		t.Fatalf("квота 8 не должна помещаться в ёмкость %d", est.Capacity)
	}

	var shrink, lower, extend *Suggestion
	for i := range est.Suggestions {
		s := &est.Suggestions[i]
		switch s.Kind {
		case SuggestShrinkInterval:
			shrink = s
		case SuggestLowerQuota:
			lower = s
		case SuggestExtendWindow:
			extend = s
		}
	}

	if shrink == nil || shrink.Interval != 45 {
		t.Fatalf("ожидали рекомендацию интервала 45 мин, получили %+v", shrink)
	}
	if lower == nil || lower.Quota != 6 {
		t.Fatalf("ожидали рекомендацию квоты 6, получили %+v", lower)
	}
	if extend == nil || extend.EndTime != "9:00 PM" {
		t.Fatalf("ожидали продление окна до 9:00 PM, получили %+v", extend)
	}
}

func TestEstimateCapacityExtendWindowShiftsStart(t *testing.T) {
	// Конец окна упирается в 23:59 — рекомендация двигает начало раньше.
	est := EstimateCapacity("6:00 PM", "9:00 PM", 60, 8)
	if est.MeetsQuota {
		t.Fatalf("квота 8 не должна помещаться в три часа")
	}
	var extend *Suggestion
	for i := range est.Suggestions {
		if est.Suggestions[i].Kind == SuggestExtendWindow {
			extend = &est.Suggestions[i]
		}
	}
	if extend == nil {
		t.Fatalf("ожидали рекомендацию расширения окна")
	}
	if extend.StartTime != "11:59 AM" || extend.EndTime != "11:59 PM" {
		t.Fatalf("ожидали окно 11:59 AM — 11:59 PM, получили %q — %q", extend.StartTime, extend.EndTime)
	}
}

func TestEstimateCapacitySmallWindow(t *testing.T) {
	// При крохотной теоретической ёмкости вычитается один слот вместо процента.
	est := EstimateCapacity("9:00 AM", "12:00 PM", 60, 2)
	if est.Theoretical != 3 {
		t.Fatalf("ожидали теоретическую ёмкость 3, получили %d", est.Theoretical)
	}
	if est.Capacity != 2 {
		t.Fatalf("ожидали ёмкость 2, получили %d", est.Capacity)
	}
}

func TestEstimateCapacityInvalidInput(t *testing.T) {
	if est := EstimateCapacity("9:00 AM", "6:00 PM", 0, 5); est.Valid {
		t.Fatalf("нулевой интервал должен давать ошибку")
	}
	if est := EstimateCapacity("9:00 AM", "6:00 PM", 60, 0); est.Valid {
		t.Fatalf("нулевая квота должна давать ошибку")
	}
	if est := EstimateCapacity("6:00 PM", "9:00 AM", 60, 5); est.Valid {
		t.Fatalf("перевёрнутое окно должно давать ошибку")
	}
	if est := EstimateCapacity("скоро", "6:00 PM", 60, 5); est.Valid {
		t.Fatalf("нечитаемое время должно давать ошибку")
	}
}

func TestEfficiencyBands(t *testing.T) {
	cases := map[int]float64{120: 0.70, 60: 0.70, 45: 0.65, 30: 0.65, 25: 0.55, 20: 0.55, 10: 0.50, 1: 0.50}
	for interval, want := range cases {
		if got := efficiencyFor(interval); got != want {
			t.Fatalf("интервал %d: ожидали %.2f, получили %.2f", interval, want, got)
		}
	}
}

func TestEstimateCapacityMonotonicInInterval(t *testing.T) {
	// Внутри одной полосы эффективности уменьшение интервала при фиксированном
	// окне не может уменьшить ёмкость. Между полосами свойство не действует:
	// поправка меняется скачком на границе (см. проверку ниже).
	bands := [][]int{
		{120, 90, 60},
		{59, 45, 30},
		{29, 25, 20},
		{19, 10, 5},
	}
	for _, intervals := range bands {
		prev := -1
		for _, interval := range intervals {
			est := EstimateCapacity("9:00 AM", "6:00 PM", interval, 1)
			if !est.Valid {
				t.Fatalf("интервал %d: не ожидали ошибку: %s", interval, est.Reason)
			}
			if est.Capacity < prev {
				t.Fatalf("интервал %d: ёмкость %d меньше, чем при большем интервале (%d)", interval, est.Capacity, prev)
			}
			prev = est.Capacity
		}
	}

	// Известный скачок на границе полос: в 600-минутном окне интервал 29
	// даёт меньшую ёмкость, чем интервал 30, из-за смены поправки 0.65 → 0.55.
	at30 := EstimateCapacity("9:00 AM", "7:00 PM", 30, 1)
	at29 := EstimateCapacity("9:00 AM", "7:00 PM", 29, 1)
	if at30.Capacity != 13 || at29.Capacity != 11 {
		t.Fatalf("ожидали ёмкости 13 и 11 на границе полос, получили %d и %d", at30.Capacity, at29.Capacity)
	}
}
