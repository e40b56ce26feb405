package pv

import (
	"fmt"
	"hash/fnv"
	"time"
)

type DayCount struct {
	Date string `json:"date"` // MM/DD
	PV   int    `json:"pv"`
}

type MonthCount struct {
	Month string `json:"month"` // YYYY-MM
	PV    int    `json:"pv"`
}

// DummyCount gives a stable placeholder count in [50, 549] for a slug, so
// repeated requests without a counter store do not jump around.
func DummyCount(slug string) uint64 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(slug))
	return 50 + uint64(h.Sum32()%500)
}

// DummyWeek is the 7-day placeholder series served when the analytics
// integration is unconfigured or failing.
func DummyWeek(now time.Time) []DayCount {
	base := []int{120, 145, 98, 210, 178, 156, 189}
	out := make([]DayCount, 0, len(base))
	for i, v := range base {
		d := now.AddDate(0, 0, i-len(base)+1)
		out = append(out, DayCount{
			Date: fmt.Sprintf("%02d/%02d", int(d.Month()), d.Day()),
			PV:   v,
		})
	}
	return out
}

// DummyTimeline builds a deterministic 12-month placeholder series keyed
// off the month labels.
func DummyTimeline(now time.Time) []MonthCount {
	out := make([]MonthCount, 0, 12)
	for i := 11; i >= 0; i-- {
		m := now.AddDate(0, -i, 0)
		label := fmt.Sprintf("%04d-%02d", m.Year(), int(m.Month()))
		h := fnv.New32a()
		_, _ = h.Write([]byte(label))
		out = append(out, MonthCount{
			Month: label,
			PV:    500 + int(h.Sum32()%2000),
		})
	}
	return out
}

func Total(days []DayCount) int {
	sum := 0
	for _, d := range days {
		sum += d.PV
	}
	return sum
}
