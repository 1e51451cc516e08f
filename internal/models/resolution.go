package models

// Resolution: шаг исторических баров, который принимает /api/v1/prices.
type Resolution string

const (
	ResolutionMinute   Resolution = "MINUTE"
	ResolutionMinute5  Resolution = "MINUTE_5"
	ResolutionMinute15 Resolution = "MINUTE_15"
	ResolutionMinute30 Resolution = "MINUTE_30"
	ResolutionHour     Resolution = "HOUR"
	ResolutionHour4    Resolution = "HOUR_4"
	ResolutionDay      Resolution = "DAY"
	ResolutionWeek     Resolution = "WEEK"
)

var resolutions = []Resolution{
	ResolutionMinute,
	ResolutionMinute5,
	ResolutionMinute15,
	ResolutionMinute30,
	ResolutionHour,
	ResolutionHour4,
	ResolutionDay,
	ResolutionWeek,
}

var resolutionSet = func() map[Resolution]struct{} {
	m := make(map[Resolution]struct{}, len(resolutions))
	for _, r := range resolutions {
		m[r] = struct{}{}
	}
	return m
}()

// Resolutions возвращает все допустимые значения в порядке возрастания шага.
func Resolutions() []Resolution {
	out := make([]Resolution, len(resolutions))
	copy(out, resolutions)
	return out
}

// Valid: точное совпадение с одним из значений, никаких подстрок.
func (r Resolution) Valid() bool {
	_, ok := resolutionSet[r]
	return ok
}

func (r Resolution) String() string { return string(r) }
