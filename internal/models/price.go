package models

import (
	"time"
)

// TimestampLayout: формат YYYY-MM-DDTHH:MM:SS, в котором API принимает from/to
// и отдаёт snapshotTime.
const TimestampLayout = "2006-01-02T15:04:05"

// Price: пара bid/ask одного поля бара.
type Price struct {
	Bid float64 `json:"bid" yaml:"bid"`
	Ask float64 `json:"ask" yaml:"ask"`
}

// PricePoint: один исторический бар.
type PricePoint struct {
	SnapshotTime     string  `json:"snapshotTime" yaml:"snapshot_time"`
	SnapshotTimeUTC  string  `json:"snapshotTimeUTC" yaml:"snapshot_time_utc"`
	OpenPrice        Price   `json:"openPrice" yaml:"open"`
	ClosePrice       Price   `json:"closePrice" yaml:"close"`
	HighPrice        Price   `json:"highPrice" yaml:"high"`
	LowPrice         Price   `json:"lowPrice" yaml:"low"`
	LastTradedVolume float64 `json:"lastTradedVolume" yaml:"volume"`

	// Time: разобранный SnapshotTime, по нему идёт сортировка и дедуп.
	Time time.Time `json:"-" yaml:"-"`
}

// PriceSeries: упорядоченная по Time серия без повторяющихся меток.
type PriceSeries []PricePoint

// First/Last удобны для логов; на пустой серии возвращают нулевое время.
func (s PriceSeries) First() time.Time {
	if len(s) == 0 {
		return time.Time{}
	}
	return s[0].Time
}

func (s PriceSeries) Last() time.Time {
	if len(s) == 0 {
		return time.Time{}
	}
	return s[len(s)-1].Time
}
