package calendar

import (
	"fmt"
	"time"
)

var ruWeekdays = map[time.Weekday]string{
	time.Monday:    "Понедельник",
	time.Tuesday:   "Вторник",
	time.Wednesday: "Среда",
	time.Thursday:  "Четверг",
	time.Friday:    "Пятница",
	time.Saturday:  "Суббота",
	time.Sunday:    "Воскресенье",
}

// FormatSlotForUser — "Суббота, 01.06.2024, 10:00–10:30".
// Если loc != nil, время переводится в указанный часовой пояс.
func FormatSlotForUser(tr TimeRange, loc *time.Location) string {
	start, end := tr.Start, tr.End
	if loc != nil {
		start = start.In(loc)
		end = end.In(loc)
	}

	return fmt.Sprintf("%s, %s, %s–%s",
		ruWeekdays[start.Weekday()],
		start.Format("02.01.2006"),
		start.Format(clockLayout),
		end.Format(clockLayout),
	)
}

// FormatDateForUser — "Суббота, 01.06.2024"; для некорректной даты возвращает её как есть.
func FormatDateForUser(date string) string {
	day, err := time.Parse(dateLayout, date)
	if err != nil {
		return date
	}
	return ruWeekdays[day.Weekday()] + ", " + day.Format("02.01.2006")
}
