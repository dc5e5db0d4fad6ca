package grpc

import (
	"time"

	"github.com/M5rkn/NailsBot/internal/model"
)

type Slot struct {
	ID           string    `json:"id"`
	Date         string    `json:"date"`
	StartTime    string    `json:"start_time"`
	EndTime      string    `json:"end_time"`
	StartsAt     time.Time `json:"starts_at"`
	EndsAt       time.Time `json:"ends_at"`
	State        string    `json:"state"`
	ClientID     *int64    `json:"client_id,omitempty"`
	ClientName   string    `json:"client_name,omitempty"`
	ClientPhone  string    `json:"client_phone,omitempty"`
	CancelReason string    `json:"cancel_reason,omitempty"`
	Version      int64     `json:"version"`
}

type SlotSpec struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// AddWorkingDayRequest: либо явный список окон Slots, либо интервал From–To,
// нарезанный по StepMinutes.
type AddWorkingDayRequest struct {
	Date        string     `json:"date"`
	Slots       []SlotSpec `json:"slots,omitempty"`
	From        string     `json:"from,omitempty"`
	To          string     `json:"to,omitempty"`
	StepMinutes int        `json:"step_minutes,omitempty"`
}

type SlotsResponse struct {
	Slots []Slot `json:"slots"`
}

type SlotIDRequest struct {
	SlotID string `json:"slot_id"`
}

type SlotResponse struct {
	Slot Slot `json:"slot"`
}

type ForceCancelRequest struct {
	SlotID string `json:"slot_id"`
	Reason string `json:"reason,omitempty"`
}

type ListSlotsRequest struct {
	From     string   `json:"from"`
	To       string   `json:"to"`
	States   []string `json:"states,omitempty"`
	Page     int      `json:"page,omitempty"`
	PageSize int      `json:"page_size,omitempty"`
}

type ListSlotsResponse struct {
	Slots    []Slot `json:"slots"`
	Page     int    `json:"page"`
	PageSize int    `json:"page_size"`
	Total    int    `json:"total"`
	HasNext  bool   `json:"has_next"`
}

type DateRequest struct {
	Date string `json:"date"`
}

type RemoveWorkingDayResponse struct {
	Cancelled int  `json:"cancelled"`
	Kept      int  `json:"kept"`
	Deleted   bool `json:"deleted"`
}

type Empty struct{}

type DateRangeRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
}

type DatesResponse struct {
	Dates []string `json:"dates"`
}

type PublishScheduleResponse struct {
	Slots int `json:"slots"`
}

type ClientRequest struct {
	ClientID int64 `json:"client_id"`
}

type CheckSubscriptionResponse struct {
	Subscribed  bool   `json:"subscribed"`
	ChannelLink string `json:"channel_link,omitempty"`
}

type AttemptBookRequest struct {
	SlotID      string `json:"slot_id"`
	ClientID    int64  `json:"client_id"`
	ClientName  string `json:"client_name,omitempty"`
	ClientPhone string `json:"client_phone,omitempty"`
}

// CancelBookingRequest отменяет запись от имени её владельца.
type CancelBookingRequest struct {
	SlotID   string `json:"slot_id"`
	ClientID int64  `json:"client_id"`
	Reason   string `json:"reason,omitempty"`
}

type CancelBookingResponse struct {
	Slot     Slot  `json:"slot"`
	Reopened *Slot `json:"reopened,omitempty"`
}

func toSlot(s model.Slot) Slot {
	return Slot{
		ID:           s.ID.String(),
		Date:         s.Date,
		StartTime:    s.StartTime,
		EndTime:      s.EndTime,
		StartsAt:     s.StartsAt,
		EndsAt:       s.EndsAt,
		State:        string(s.State),
		ClientID:     s.ClientID,
		ClientName:   s.ClientName,
		ClientPhone:  s.ClientPhone,
		CancelReason: s.CancelReason,
		Version:      s.Version,
	}
}

func toSlots(in []model.Slot) []Slot {
	out := make([]Slot, 0, len(in))
	for _, s := range in {
		out = append(out, toSlot(s))
	}
	return out
}
