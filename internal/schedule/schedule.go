// Package schedule — арифметика недельной сетки: начало недели, смещение дня,
// абсолютное время слота и окна напоминаний/добора списаний.
package schedule

import (
	"fmt"
	"time"
)

const DateLayout = "2006-01-02"

// Coord — координата слота внутри недели. DayOfWeek — смещение от понедельника (0..6).
type Coord struct {
	DayOfWeek int `json:"dayOfWeek"`
	Hour      int `json:"hour"`
	Minute    int `json:"minute"`
}

// Key — канонический ключ для сравнения множеств.
func (c Coord) Key() string {
	return fmt.Sprintf("%d:%02d:%02d", c.DayOfWeek, c.Hour, c.Minute)
}

// ParseWeekStart — строгая дата YYYY-MM-DD, обязательно понедельник.
// Возвращает полночь UTC (так дата и хранится в колонке date).
func ParseWeekStart(s string) (time.Time, error) {
	d, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("weekStart %q: expected YYYY-MM-DD", s)
	}
	if d.Weekday() != time.Monday {
		return time.Time{}, fmt.Errorf("weekStart %q is a %s, expected Monday", s, d.Weekday())
	}
	return d, nil
}

// WeekStart — понедельник ISO-недели, в которую попадает t (в поясе loc), как дата UTC.
func WeekStart(t time.Time, loc *time.Location) time.Time {
	lt := t.In(loc)
	y, m, d := lt.Date()
	return time.Date(y, m, d-DayOffset(t, loc), 0, 0, 0, 0, time.UTC)
}

// DayOffset — номер дня от понедельника (пн=0 ... вс=6) в поясе loc.
func DayOffset(t time.Time, loc *time.Location) int {
	return (int(t.In(loc).Weekday()) + 6) % 7
}

// StartsAt — абсолютное время начала слота. weekStart берётся как календарная дата,
// часы/минуты — в опорном поясе loc (переходы на летнее время учитывает time.Date).
func StartsAt(weekStart time.Time, c Coord, loc *time.Location) time.Time {
	y, m, d := weekStart.Date()
	return time.Date(y, m, d+c.DayOfWeek, c.Hour, c.Minute, 0, 0, loc)
}

// ReminderDue — слот начинается в ближайшие window (границы включены), и ещё не начался.
func ReminderDue(start, now time.Time, window time.Duration) bool {
	d := start.Sub(now)
	return d >= 0 && d <= window
}

// BackfillRange — окно добора списаний: [now-lookback, now).
func BackfillRange(now time.Time, lookback time.Duration) (from, to time.Time) {
	return now.Add(-lookback), now
}

// InBackfill — слот уже прошёл, но не раньше now-lookback (граница включена).
func InBackfill(start, now time.Time, lookback time.Duration) bool {
	from, to := BackfillRange(now, lookback)
	return !start.Before(from) && start.Before(to)
}

// Weeks — все начала недель от недели from до недели to включительно.
func Weeks(from, to time.Time, loc *time.Location) []time.Time {
	first, last := WeekStart(from, loc), WeekStart(to, loc)
	var out []time.Time
	for w := first; !w.After(last); w = w.AddDate(0, 0, 7) {
		out = append(out, w)
	}
	return out
}
