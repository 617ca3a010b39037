package weeks

import "time"

// KeyLayout is the normalized format for week keys.
const KeyLayout = "2006-01-02"

// WeekStart returns the Monday starting the canonical week of t, truncated to
// midnight UTC.
func WeekStart(t time.Time) time.Time {
	t = t.UTC()
	weekday := int(t.Weekday())
	if weekday == 0 {
		weekday = 7
	}
	day := t.AddDate(0, 0, 1-weekday)
	return time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
}

// Key normalizes t's canonical week start to its string key.
func Key(t time.Time) string {
	return WeekStart(t).Format(KeyLayout)
}

// ParseKey parses a normalized week key.
func ParseKey(key string) (time.Time, error) {
	return time.ParseInLocation(KeyLayout, key, time.UTC)
}

// NextWeek advances a week start by one week.
func NextWeek(t time.Time) time.Time {
	return t.AddDate(0, 0, 7)
}

// Resolve maps a calendar date to the applicable reporting week.
//
// Matching is by exact equality between the normalized start of date's
// canonical week and a custom week's start. Custom weeks are expected to align
// to the Monday grid; a date inside a custom week's range whose week start
// differs from the custom start falls through to the default bucket (see
// ContainsDate for detecting misaligned configurations). When no custom week
// matches, the default Monday bucket applies from the user's first working
// week onward; earlier dates resolve to ErrNoWeek.
func Resolve(date time.Time, custom []CustomWeek, firstWeek time.Time) (Week, error) {
	key := Key(date)
	for _, cw := range custom {
		if cw.PeriodFrom.UTC().Format(KeyLayout) == key {
			return Week{
				Key:           key,
				Name:          cw.Name,
				From:          WeekStart(cw.PeriodFrom),
				To:            cw.PeriodTo.UTC(),
				RequiredHours: cw.RequiredHours,
				Custom:        true,
				CustomID:      cw.ID,
			}, nil
		}
	}

	if firstWeek.IsZero() {
		return Week{}, ErrNoWeek
	}
	start := WeekStart(date)
	if start.Before(WeekStart(firstWeek)) {
		return Week{}, ErrNoWeek
	}
	return Week{
		Key:           key,
		Name:          key,
		From:          start,
		To:            start.AddDate(0, 0, 6),
		RequiredHours: DefaultRequiredHours,
	}, nil
}

// ContainsDate reports whether date falls inside the custom week's range,
// regardless of week-start alignment.
func ContainsDate(cw CustomWeek, date time.Time) bool {
	day := date.UTC().Truncate(24 * time.Hour)
	from := cw.PeriodFrom.UTC().Truncate(24 * time.Hour)
	to := cw.PeriodTo.UTC().Truncate(24 * time.Hour)
	return !day.Before(from) && !day.After(to)
}

// Misaligned returns the custom weeks whose start does not sit on the Monday
// grid. Such weeks are unreachable through Resolve.
func Misaligned(custom []CustomWeek) []CustomWeek {
	var out []CustomWeek
	for _, cw := range custom {
		if !WeekStart(cw.PeriodFrom).Equal(cw.PeriodFrom.UTC().Truncate(24 * time.Hour)) {
			out = append(out, cw)
		}
	}
	return out
}
