package notify

import (
	"html"
	"strings"
	"time"

	"github.com/M5rkn/NailsBot/internal/calendar"
	"github.com/M5rkn/NailsBot/internal/model"
)

func slotLine(slot model.Slot, loc *time.Location) string {
	return calendar.FormatSlotForUser(calendar.TimeRange{Start: slot.StartsAt, End: slot.EndsAt}, loc)
}

func ReminderText(slot model.Slot, loc *time.Location) string {
	return "⏰ Напоминаем, что вы записаны на процедуру\n" +
		"<b>" + html.EscapeString(slotLine(slot, loc)) + "</b>\n\n" +
		"Ждём вас!"
}

func CancelledText(slot model.Slot, reason string) string {
	var b strings.Builder
	b.WriteString("❌ <b>Ваша запись отменена администратором</b>\n\n")
	b.WriteString("Дата: <b>" + html.EscapeString(calendar.FormatDateForUser(slot.Date)) + "</b>\n")
	b.WriteString("Время: <b>" + html.EscapeString(slot.Window()) + "</b>")
	if reason != "" {
		b.WriteString("\nПричина: " + html.EscapeString(reason))
	}
	return b.String()
}

// ScheduleText: public скрывает имена клиентов.
func ScheduleText(date string, slots []model.Slot, public bool) string {
	lines := []string{"📅 <b>Расписание на " + html.EscapeString(calendar.FormatDateForUser(date)) + "</b>"}

	shown := 0
	for _, slot := range slots {
		window := "<b>" + html.EscapeString(slot.Window()) + "</b>"
		switch slot.State {
		case model.SlotStateOpen:
			lines = append(lines, "🟢 "+window+" — свободно")
		case model.SlotStateBooked, model.SlotStateCompleted, model.SlotStateHeld:
			if public || slot.ClientName == "" {
				lines = append(lines, "✅ "+window+" — занято")
			} else {
				lines = append(lines, "✅ "+window+" — "+html.EscapeString(slot.ClientName))
			}
		default:
			continue
		}
		shown++
	}
	if shown == 0 {
		lines = append(lines, "⚠️ <b>Нет слотов</b>")
	}
	return strings.Join(lines, "\n")
}

func NotSubscribedText(channelLink string) string {
	text := "Для записи необходимо подписаться на канал."
	if channelLink != "" {
		text += "\n" + html.EscapeString(channelLink)
	}
	return text
}
