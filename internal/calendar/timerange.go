package calendar

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrInvalidTimeRange = errors.New("invalid time range")
	ErrSlotDuration     = errors.New("slot duration must be positive")
	ErrInvalidDate      = errors.New("invalid date, expected YYYY-MM-DD")
	ErrInvalidClock     = errors.New("invalid time of day, expected HH:MM")
)

const (
	dateLayout  = "2006-01-02"
	clockLayout = "15:04"
)

// TimeRange представляет временной интервал [Start, End).
type TimeRange struct {
	Start time.Time
	End   time.Time
}

func (tr TimeRange) Duration() time.Duration {
	return tr.End.Sub(tr.Start)
}

// Overlaps — полуоткрытые интервалы пересекаются; касание концами не считается.
func (tr TimeRange) Overlaps(other TimeRange) bool {
	return tr.Start.Before(other.End) && other.Start.Before(tr.End)
}

// ParseDate разбирает "YYYY-MM-DD" как полночь в loc.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	t, err := time.ParseInLocation(dateLayout, s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return t, nil
}

// ParseClock разбирает "HH:MM" и возвращает смещение от полуночи.
func ParseClock(s string) (time.Duration, error) {
	t, err := time.Parse(clockLayout, s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

// FormatClock обратна ParseClock, час всегда двузначный.
func FormatClock(offset time.Duration) string {
	h := int(offset / time.Hour)
	m := int((offset % time.Hour) / time.Minute)
	return fmt.Sprintf("%02d:%02d", h, m)
}

// At — момент day+offset по стенным часам day.Location().
// Через time.Date, чтобы переход на летнее время не сдвигал часы.
func At(day time.Time, offset time.Duration) time.Time {
	y, m, d := day.Date()
	mins := int(offset / time.Minute)
	return time.Date(y, m, d, mins/60, mins%60, 0, 0, day.Location())
}

// LocalRange собирает интервал из даты и двух отметок "HH:MM" в loc.
func LocalRange(date, start, end string, loc *time.Location) (TimeRange, error) {
	day, err := ParseDate(date, loc)
	if err != nil {
		return TimeRange{}, err
	}
	from, err := ParseClock(start)
	if err != nil {
		return TimeRange{}, err
	}
	to, err := ParseClock(end)
	if err != nil {
		return TimeRange{}, err
	}
	if to <= from {
		return TimeRange{}, fmt.Errorf("%w: %s–%s", ErrInvalidTimeRange, start, end)
	}
	return TimeRange{Start: At(day, from), End: At(day, to)}, nil
}

// SplitToTimeSlots разбивает интервал на слоты фиксированной длительности.
// "Хвост" короче step отбрасывается.
func SplitToTimeSlots(tr TimeRange, step time.Duration) ([]TimeRange, error) {
	if step <= 0 {
		return nil, ErrSlotDuration
	}

	var slots []TimeRange
	for cur := tr.Start; !cur.Add(step).After(tr.End); cur = cur.Add(step) {
		slots = append(slots, TimeRange{Start: cur, End: cur.Add(step)})
	}
	return slots, nil
}

// HasOverlap проверяет, пересекается ли newRange с existing,
// и возвращает все пересечения.
func HasOverlap(newRange TimeRange, existing []TimeRange) (bool, []TimeRange) {
	var conflicts []TimeRange
	for _, tr := range existing {
		if newRange.Overlaps(tr) {
			conflicts = append(conflicts, tr)
		}
	}
	return len(conflicts) > 0, conflicts
}
