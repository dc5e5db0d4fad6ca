package grpc

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/M5rkn/NailsBot/internal/calendar"
	"github.com/M5rkn/NailsBot/internal/model"
	"github.com/M5rkn/NailsBot/internal/service"
)

type availabilityService interface {
	AddWorkingDay(ctx context.Context, date string, specs []service.SlotSpec) ([]model.Slot, error)
	RemoveSlot(ctx context.Context, id uuid.UUID) (*model.Slot, error)
	ForceCancel(ctx context.Context, id uuid.UUID, reason string) (*model.Slot, error)
	ListSlots(ctx context.Context, q service.SlotQuery) ([]model.Slot, error)
	RemoveWorkingDay(ctx context.Context, date string) (service.RemoveDayResult, error)
	CloseDay(ctx context.Context, date string) error
	OpenDay(ctx context.Context, date string) error
	ListAvailableDates(ctx context.Context, from, to string) ([]string, error)
	DaySchedule(ctx context.Context, date string) (service.DaySchedule, error)
}

type bookingService interface {
	AttemptBook(ctx context.Context, in service.AttemptBookInput) (*model.Slot, error)
	CancelBooking(ctx context.Context, id uuid.UUID, actor service.Actor, reason string) (*service.CancelResult, error)
	CompleteBooking(ctx context.Context, id uuid.UUID) (*model.Slot, error)
	ClientBookings(ctx context.Context, clientID int64) ([]model.Slot, error)
}

type subscriptionChecker interface {
	IsSubscribed(ctx context.Context, clientID int64) (bool, error)
	ChannelLink() string
}

type schedulePublisher interface {
	PublishSchedule(ctx context.Context, date string, slots []model.Slot) error
}

// CalendarServer — gRPC-фасад над сервисами календаря и бронирования.
type CalendarServer struct {
	avail     availabilityService
	booking   bookingService
	subs      subscriptionChecker
	publisher schedulePublisher
	log       *slog.Logger
}

// NewCalendarServer: subs и publisher могут быть nil, тогда проверка подписки
// пропускается, а публикация расписания недоступна.
func NewCalendarServer(
	avail availabilityService,
	booking bookingService,
	subs subscriptionChecker,
	publisher schedulePublisher,
	log *slog.Logger,
) *CalendarServer {
	if log == nil {
		log = slog.Default()
	}
	return &CalendarServer{
		avail:     avail,
		booking:   booking,
		subs:      subs,
		publisher: publisher,
		log:       log.With(slog.String("component", "grpc.calendar")),
	}
}

func (s *CalendarServer) AddWorkingDay(ctx context.Context, req *AddWorkingDayRequest) (*SlotsResponse, error) {
	log := s.log.With(slog.String("rpc", "AddWorkingDay"), slog.String("date", req.Date))

	specs := make([]service.SlotSpec, 0, len(req.Slots))
	for _, sp := range req.Slots {
		specs = append(specs, service.SlotSpec{Start: sp.Start, End: sp.End})
	}
	if len(specs) == 0 && req.From != "" {
		if req.StepMinutes <= 0 {
			return nil, status.Error(codes.InvalidArgument, "step_minutes must be positive")
		}
		var err error
		specs, err = service.SlotSpecsFromRange(req.From, req.To, time.Duration(req.StepMinutes)*time.Minute)
		if err != nil {
			return nil, s.toStatus(ctx, log, err)
		}
	}

	slots, err := s.avail.AddWorkingDay(ctx, req.Date, specs)
	if err != nil {
		return nil, s.toStatus(ctx, log, err)
	}
	return &SlotsResponse{Slots: toSlots(slots)}, nil
}

func (s *CalendarServer) RemoveSlot(ctx context.Context, req *SlotIDRequest) (*SlotResponse, error) {
	log := s.log.With(slog.String("rpc", "RemoveSlot"))

	id, err := parseSlotID(req.SlotID)
	if err != nil {
		return nil, err
	}
	slot, err := s.avail.RemoveSlot(ctx, id)
	if err != nil {
		return nil, s.toStatus(ctx, log, err)
	}
	return &SlotResponse{Slot: toSlot(*slot)}, nil
}

func (s *CalendarServer) ForceCancel(ctx context.Context, req *ForceCancelRequest) (*SlotResponse, error) {
	log := s.log.With(slog.String("rpc", "ForceCancel"))

	id, err := parseSlotID(req.SlotID)
	if err != nil {
		return nil, err
	}
	slot, err := s.avail.ForceCancel(ctx, id, req.Reason)
	if err != nil {
		return nil, s.toStatus(ctx, log, err)
	}
	return &SlotResponse{Slot: toSlot(*slot)}, nil
}

func (s *CalendarServer) ListSlots(ctx context.Context, req *ListSlotsRequest) (*ListSlotsResponse, error) {
	log := s.log.With(slog.String("rpc", "ListSlots"))

	states := make([]model.SlotState, 0, len(req.States))
	for _, st := range req.States {
		state := model.SlotState(st)
		if !state.Valid() {
			return nil, status.Errorf(codes.InvalidArgument, "unknown slot state %q", st)
		}
		states = append(states, state)
	}

	slots, err := s.avail.ListSlots(ctx, service.SlotQuery{From: req.From, To: req.To, States: states})
	if err != nil {
		return nil, s.toStatus(ctx, log, err)
	}

	page := calendar.Paginate(slots, req.Page, req.PageSize)
	return &ListSlotsResponse{
		Slots:    toSlots(page.Items),
		Page:     page.Page,
		PageSize: page.PageSize,
		Total:    page.Total,
		HasNext:  page.HasNext,
	}, nil
}

func (s *CalendarServer) RemoveWorkingDay(ctx context.Context, req *DateRequest) (*RemoveWorkingDayResponse, error) {
	log := s.log.With(slog.String("rpc", "RemoveWorkingDay"), slog.String("date", req.Date))

	res, err := s.avail.RemoveWorkingDay(ctx, req.Date)
	if err != nil {
		return nil, s.toStatus(ctx, log, err)
	}
	return &RemoveWorkingDayResponse{Cancelled: res.Cancelled, Kept: res.Kept, Deleted: res.Deleted}, nil
}

func (s *CalendarServer) CloseDay(ctx context.Context, req *DateRequest) (*Empty, error) {
	if err := s.avail.CloseDay(ctx, req.Date); err != nil {
		return nil, s.toStatus(ctx, s.log.With(slog.String("rpc", "CloseDay")), err)
	}
	return &Empty{}, nil
}

func (s *CalendarServer) OpenDay(ctx context.Context, req *DateRequest) (*Empty, error) {
	if err := s.avail.OpenDay(ctx, req.Date); err != nil {
		return nil, s.toStatus(ctx, s.log.With(slog.String("rpc", "OpenDay")), err)
	}
	return &Empty{}, nil
}

func (s *CalendarServer) ListAvailableDates(ctx context.Context, req *DateRangeRequest) (*DatesResponse, error) {
	dates, err := s.avail.ListAvailableDates(ctx, req.From, req.To)
	if err != nil {
		return nil, s.toStatus(ctx, s.log.With(slog.String("rpc", "ListAvailableDates")), err)
	}
	if dates == nil {
		dates = []string{}
	}
	return &DatesResponse{Dates: dates}, nil
}

func (s *CalendarServer) PublishSchedule(ctx context.Context, req *DateRequest) (*PublishScheduleResponse, error) {
	log := s.log.With(slog.String("rpc", "PublishSchedule"), slog.String("date", req.Date))

	if s.publisher == nil {
		return nil, status.Error(codes.Unimplemented, "schedule publishing is not configured")
	}
	day, err := s.avail.DaySchedule(ctx, req.Date)
	if err != nil {
		return nil, s.toStatus(ctx, log, err)
	}
	if err := s.publisher.PublishSchedule(ctx, day.Date, day.Slots); err != nil {
		log.ErrorContext(ctx, "schedule publish failed", slog.Any("err", err))
		return nil, status.Error(codes.Unavailable, "schedule publish failed")
	}
	log.InfoContext(ctx, "schedule published", slog.Int("slots", len(day.Slots)))
	return &PublishScheduleResponse{Slots: len(day.Slots)}, nil
}

func (s *CalendarServer) CheckSubscription(ctx context.Context, req *ClientRequest) (*CheckSubscriptionResponse, error) {
	ok, err := s.checkSubscription(ctx, req.ClientID)
	if err != nil {
		return nil, err
	}
	resp := &CheckSubscriptionResponse{Subscribed: ok}
	if !ok && s.subs != nil {
		resp.ChannelLink = s.subs.ChannelLink()
	}
	return resp, nil
}

// AttemptBook проверяет подписку и только потом обращается к бронированию.
func (s *CalendarServer) AttemptBook(ctx context.Context, req *AttemptBookRequest) (*SlotResponse, error) {
	log := s.log.With(slog.String("rpc", "AttemptBook"), slog.Int64("client_id", req.ClientID))

	id, err := parseSlotID(req.SlotID)
	if err != nil {
		return nil, err
	}

	ok, err := s.checkSubscription(ctx, req.ClientID)
	if err != nil {
		return nil, err
	}
	if !ok {
		log.InfoContext(ctx, "booking rejected: not subscribed")
		msg := "subscription required"
		if link := s.subs.ChannelLink(); link != "" {
			msg += ": " + link
		}
		return nil, status.Error(codes.PermissionDenied, msg)
	}

	slot, err := s.booking.AttemptBook(ctx, service.AttemptBookInput{
		SlotID:      id,
		ClientID:    req.ClientID,
		ClientName:  req.ClientName,
		ClientPhone: req.ClientPhone,
	})
	if err != nil {
		return nil, s.toStatus(ctx, log, err)
	}
	return &SlotResponse{Slot: toSlot(*slot)}, nil
}

func (s *CalendarServer) CancelBooking(ctx context.Context, req *CancelBookingRequest) (*CancelBookingResponse, error) {
	log := s.log.With(slog.String("rpc", "CancelBooking"))

	id, err := parseSlotID(req.SlotID)
	if err != nil {
		return nil, err
	}
	// Отмена администратором идёт через ForceCancel, чтобы клиент узнал об этом.
	if req.ClientID <= 0 {
		return nil, status.Error(codes.InvalidArgument, "client_id must be positive; admins use ForceCancel")
	}

	res, err := s.booking.CancelBooking(ctx, id, service.Actor{Kind: service.ActorClient, ID: req.ClientID}, req.Reason)
	if err != nil {
		return nil, s.toStatus(ctx, log, err)
	}
	resp := &CancelBookingResponse{Slot: toSlot(*res.Slot)}
	if res.Reopened != nil {
		reopened := toSlot(*res.Reopened)
		resp.Reopened = &reopened
	}
	return resp, nil
}

func (s *CalendarServer) CompleteBooking(ctx context.Context, req *SlotIDRequest) (*SlotResponse, error) {
	id, err := parseSlotID(req.SlotID)
	if err != nil {
		return nil, err
	}
	slot, err := s.booking.CompleteBooking(ctx, id)
	if err != nil {
		return nil, s.toStatus(ctx, s.log.With(slog.String("rpc", "CompleteBooking")), err)
	}
	return &SlotResponse{Slot: toSlot(*slot)}, nil
}

func (s *CalendarServer) ClientBookings(ctx context.Context, req *ClientRequest) (*SlotsResponse, error) {
	slots, err := s.booking.ClientBookings(ctx, req.ClientID)
	if err != nil {
		return nil, s.toStatus(ctx, s.log.With(slog.String("rpc", "ClientBookings")), err)
	}
	return &SlotsResponse{Slots: toSlots(slots)}, nil
}

func (s *CalendarServer) checkSubscription(ctx context.Context, clientID int64) (bool, error) {
	if clientID <= 0 {
		return false, status.Error(codes.InvalidArgument, "client_id must be positive")
	}
	if s.subs == nil {
		return true, nil
	}
	ok, err := s.subs.IsSubscribed(ctx, clientID)
	if err != nil {
		s.log.WarnContext(ctx, "subscription check failed", slog.Int64("client_id", clientID), slog.Any("err", err))
		return false, status.Error(codes.Unavailable, "subscription check failed, try again later")
	}
	return ok, nil
}

func parseSlotID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, status.Error(codes.InvalidArgument, "slot_id must be a UUID")
	}
	return id, nil
}

// toStatus переводит ошибки сервиса в коды gRPC. Неизвестные ошибки логируются
// и уходят клиенту как Internal без подробностей.
func (s *CalendarServer) toStatus(ctx context.Context, log *slog.Logger, err error) error {
	var vErr *service.ValidationError
	switch {
	case errors.As(err, &vErr):
		return status.Error(codes.InvalidArgument, vErr.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, "request timed out")
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, "request cancelled")
	case errors.Is(err, service.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, service.ErrConflict):
		return status.Error(codes.AlreadyExists, err.Error())
	case errors.Is(err, service.ErrAlreadyBooked), errors.Is(err, service.ErrCancelled):
		return status.Error(codes.FailedPrecondition, "slot no longer available")
	case errors.Is(err, service.ErrInvalidState), errors.Is(err, service.ErrBookingLimit):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, service.ErrConcurrentModification):
		// проигравший гонку видит то же, что и при занятом слоте
		return status.Error(codes.Aborted, "slot no longer available")
	case errors.Is(err, service.ErrNotOwner):
		return status.Error(codes.PermissionDenied, err.Error())
	}
	log.ErrorContext(ctx, "request failed", slog.Any("err", err))
	return status.Error(codes.Internal, "internal error")
}
