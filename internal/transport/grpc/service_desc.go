package grpc

import (
	"context"

	"google.golang.org/grpc"
)

const ServiceName = "nailsbot.calendar.v1.CalendarService"

type CalendarServiceServer interface {
	AddWorkingDay(context.Context, *AddWorkingDayRequest) (*SlotsResponse, error)
	RemoveSlot(context.Context, *SlotIDRequest) (*SlotResponse, error)
	ForceCancel(context.Context, *ForceCancelRequest) (*SlotResponse, error)
	ListSlots(context.Context, *ListSlotsRequest) (*ListSlotsResponse, error)
	RemoveWorkingDay(context.Context, *DateRequest) (*RemoveWorkingDayResponse, error)
	CloseDay(context.Context, *DateRequest) (*Empty, error)
	OpenDay(context.Context, *DateRequest) (*Empty, error)
	ListAvailableDates(context.Context, *DateRangeRequest) (*DatesResponse, error)
	PublishSchedule(context.Context, *DateRequest) (*PublishScheduleResponse, error)
	CheckSubscription(context.Context, *ClientRequest) (*CheckSubscriptionResponse, error)
	AttemptBook(context.Context, *AttemptBookRequest) (*SlotResponse, error)
	CancelBooking(context.Context, *CancelBookingRequest) (*CancelBookingResponse, error)
	CompleteBooking(context.Context, *SlotIDRequest) (*SlotResponse, error)
	ClientBookings(context.Context, *ClientRequest) (*SlotsResponse, error)
}

var _ CalendarServiceServer = (*CalendarServer)(nil)

// CalendarServiceDesc описывает сервис без protoc: сообщения — Go-структуры,
// которые кодирует jsonCodec.
var CalendarServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*CalendarServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("AddWorkingDay", CalendarServiceServer.AddWorkingDay),
		unary("RemoveSlot", CalendarServiceServer.RemoveSlot),
		unary("ForceCancel", CalendarServiceServer.ForceCancel),
		unary("ListSlots", CalendarServiceServer.ListSlots),
		unary("RemoveWorkingDay", CalendarServiceServer.RemoveWorkingDay),
		unary("CloseDay", CalendarServiceServer.CloseDay),
		unary("OpenDay", CalendarServiceServer.OpenDay),
		unary("ListAvailableDates", CalendarServiceServer.ListAvailableDates),
		unary("PublishSchedule", CalendarServiceServer.PublishSchedule),
		unary("CheckSubscription", CalendarServiceServer.CheckSubscription),
		unary("AttemptBook", CalendarServiceServer.AttemptBook),
		unary("CancelBooking", CalendarServiceServer.CancelBooking),
		unary("CompleteBooking", CalendarServiceServer.CompleteBooking),
		unary("ClientBookings", CalendarServiceServer.ClientBookings),
	},
	Streams: []grpc.StreamDesc{},
}

func RegisterCalendarServiceServer(s grpc.ServiceRegistrar, srv CalendarServiceServer) {
	s.RegisterService(&CalendarServiceDesc, srv)
}

func fullMethod(name string) string {
	return "/" + ServiceName + "/" + name
}

func unary[Req, Resp any](
	name string,
	call func(CalendarServiceServer, context.Context, *Req) (*Resp, error),
) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			impl := srv.(CalendarServiceServer)
			if interceptor == nil {
				return call(impl, ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(name)}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(impl, ctx, req.(*Req))
			})
		},
	}
}
