package grpc

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Client — типизированный клиент сервиса календаря для CLI и бота.
type Client struct {
	conn *grpc.ClientConn
}

func Dial(addr string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("grpc client %s: %w", addr, err)
	}
	return &Client{conn: conn}, nil
}

func NewClient(conn *grpc.ClientConn) *Client {
	return &Client{conn: conn}
}

func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) invoke(ctx context.Context, method string, in, out any) error {
	return c.conn.Invoke(ctx, fullMethod(method), in, out, grpc.CallContentSubtype(codecName))
}

func call[T any](ctx context.Context, c *Client, method string, in any) (*T, error) {
	out := new(T)
	if err := c.invoke(ctx, method, in, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) AddWorkingDay(ctx context.Context, in *AddWorkingDayRequest) (*SlotsResponse, error) {
	return call[SlotsResponse](ctx, c, "AddWorkingDay", in)
}

func (c *Client) RemoveSlot(ctx context.Context, in *SlotIDRequest) (*SlotResponse, error) {
	return call[SlotResponse](ctx, c, "RemoveSlot", in)
}

func (c *Client) ForceCancel(ctx context.Context, in *ForceCancelRequest) (*SlotResponse, error) {
	return call[SlotResponse](ctx, c, "ForceCancel", in)
}

func (c *Client) ListSlots(ctx context.Context, in *ListSlotsRequest) (*ListSlotsResponse, error) {
	return call[ListSlotsResponse](ctx, c, "ListSlots", in)
}

func (c *Client) RemoveWorkingDay(ctx context.Context, in *DateRequest) (*RemoveWorkingDayResponse, error) {
	return call[RemoveWorkingDayResponse](ctx, c, "RemoveWorkingDay", in)
}

func (c *Client) CloseDay(ctx context.Context, in *DateRequest) error {
	return c.invoke(ctx, "CloseDay", in, new(Empty))
}

func (c *Client) OpenDay(ctx context.Context, in *DateRequest) error {
	return c.invoke(ctx, "OpenDay", in, new(Empty))
}

func (c *Client) ListAvailableDates(ctx context.Context, in *DateRangeRequest) (*DatesResponse, error) {
	return call[DatesResponse](ctx, c, "ListAvailableDates", in)
}

func (c *Client) PublishSchedule(ctx context.Context, in *DateRequest) (*PublishScheduleResponse, error) {
	return call[PublishScheduleResponse](ctx, c, "PublishSchedule", in)
}

func (c *Client) CheckSubscription(ctx context.Context, in *ClientRequest) (*CheckSubscriptionResponse, error) {
	return call[CheckSubscriptionResponse](ctx, c, "CheckSubscription", in)
}

func (c *Client) AttemptBook(ctx context.Context, in *AttemptBookRequest) (*SlotResponse, error) {
	return call[SlotResponse](ctx, c, "AttemptBook", in)
}

func (c *Client) CancelBooking(ctx context.Context, in *CancelBookingRequest) (*CancelBookingResponse, error) {
	return call[CancelBookingResponse](ctx, c, "CancelBooking", in)
}

func (c *Client) CompleteBooking(ctx context.Context, in *SlotIDRequest) (*SlotResponse, error) {
	return call[SlotResponse](ctx, c, "CompleteBooking", in)
}

func (c *Client) ClientBookings(ctx context.Context, in *ClientRequest) (*SlotsResponse, error) {
	return call[SlotsResponse](ctx, c, "ClientBookings", in)
}
