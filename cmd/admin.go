package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	grpctransport "github.com/M5rkn/NailsBot/internal/transport/grpc"
)

type adminOptions struct {
	root    *rootOptions
	addr    string
	timeout time.Duration
}

// Команды администратора поверх gRPC API запущенного serve.
func newAdminCmd(root *rootOptions) *cobra.Command {
	opts := &adminOptions{root: root}

	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Manage working days and slots through the gRPC API",
	}
	cmd.PersistentFlags().StringVar(&opts.addr, "addr", "", "gRPC address (default: grpc.addr from config)")
	cmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", 15*time.Second, "request timeout")

	cmd.AddCommand(
		newAdminAddDayCmd(opts),
		newAdminListCmd(opts),
		newAdminRemoveSlotCmd(opts),
		newAdminForceCancelCmd(opts),
		newAdminDayCmd(opts, "close-day", "Close a working day for new bookings",
			func(ctx context.Context, c *grpctransport.Client, date string) (string, error) {
				return "closed " + date, c.CloseDay(ctx, &grpctransport.DateRequest{Date: date})
			}),
		newAdminDayCmd(opts, "open-day", "Reopen a closed working day",
			func(ctx context.Context, c *grpctransport.Client, date string) (string, error) {
				return "opened " + date, c.OpenDay(ctx, &grpctransport.DateRequest{Date: date})
			}),
		newAdminDayCmd(opts, "remove-day", "Cancel free slots of a day and remove it",
			func(ctx context.Context, c *grpctransport.Client, date string) (string, error) {
				res, err := c.RemoveWorkingDay(ctx, &grpctransport.DateRequest{Date: date})
				if err != nil {
					return "", err
				}
				return fmt.Sprintf("cancelled %d slot(s), kept %d booking(s), deleted=%t", res.Cancelled, res.Kept, res.Deleted), nil
			}),
		newAdminDayCmd(opts, "publish", "Post the day's schedule to the schedule channel",
			func(ctx context.Context, c *grpctransport.Client, date string) (string, error) {
				res, err := c.PublishSchedule(ctx, &grpctransport.DateRequest{Date: date})
				if err != nil {
					return "", err
				}
				return fmt.Sprintf("published %d slot(s)", res.Slots), nil
			}),
	)
	return cmd
}

// run открывает соединение и выполняет fn с таймаутом.
func (o *adminOptions) run(cmd *cobra.Command, fn func(ctx context.Context, c *grpctransport.Client) error) error {
	addr := o.addr
	if addr == "" {
		cfg, _, err := o.root.load()
		if err != nil {
			return err
		}
		addr = cfg.GRPCAddr
	}
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}

	client, err := grpctransport.Dial(addr)
	if err != nil {
		return err
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), o.timeout)
	defer cancel()
	return fn(ctx, client)
}

func newAdminAddDayCmd(opts *adminOptions) *cobra.Command {
	var (
		from, to string
		step     time.Duration
		windows  []string
	)

	cmd := &cobra.Command{
		Use:   "add-day DATE",
		Short: "Create open slots for a date (YYYY-MM-DD)",
		Example: "  nailsbot admin add-day 2024-06-01 --from 10:00 --to 18:00 --step 1h\n" +
			"  nailsbot admin add-day 2024-06-01 --slot 10:00-11:30 --slot 14:00-15:00",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := &grpctransport.AddWorkingDayRequest{Date: args[0]}
			for _, w := range windows {
				start, end, ok := strings.Cut(w, "-")
				if !ok {
					return fmt.Errorf("slot %q: want HH:MM-HH:MM", w)
				}
				req.Slots = append(req.Slots, grpctransport.SlotSpec{Start: start, End: end})
			}
			if len(req.Slots) == 0 {
				if from == "" || to == "" {
					return fmt.Errorf("either --slot or --from/--to is required")
				}
				req.From, req.To, req.StepMinutes = from, to, int(step/time.Minute)
			}

			return opts.run(cmd, func(ctx context.Context, c *grpctransport.Client) error {
				resp, err := c.AddWorkingDay(ctx, req)
				if err != nil {
					return err
				}
				return printSlots(cmd.OutOrStdout(), resp.Slots)
			})
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "start of the working interval, HH:MM")
	cmd.Flags().StringVar(&to, "to", "", "end of the working interval, HH:MM")
	cmd.Flags().DurationVar(&step, "step", time.Hour, "slot length for --from/--to")
	cmd.Flags().StringArrayVar(&windows, "slot", nil, "explicit slot HH:MM-HH:MM, repeatable")
	return cmd
}

func newAdminListCmd(opts *adminOptions) *cobra.Command {
	var (
		from, to       string
		states         []string
		page, pageSize int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List slots in a date range",
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, c *grpctransport.Client) error {
				resp, err := c.ListSlots(ctx, &grpctransport.ListSlotsRequest{
					From:     from,
					To:       to,
					States:   states,
					Page:     page,
					PageSize: pageSize,
				})
				if err != nil {
					return err
				}
				if err := printSlots(cmd.OutOrStdout(), resp.Slots); err != nil {
					return err
				}
				if resp.HasNext {
					fmt.Fprintf(cmd.OutOrStdout(), "page %d, %d total; use --page %d for more\n", resp.Page, resp.Total, resp.Page+1)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "first date, YYYY-MM-DD")
	cmd.Flags().StringVar(&to, "to", "", "last date, YYYY-MM-DD")
	cmd.Flags().StringSliceVar(&states, "state", nil, "filter by state (open, booked, ...)")
	cmd.Flags().IntVar(&page, "page", 1, "page number")
	cmd.Flags().IntVar(&pageSize, "page-size", 50, "slots per page")
	return cmd
}

func newAdminRemoveSlotCmd(opts *adminOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "remove-slot SLOT_ID",
		Short: "Cancel an open slot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, c *grpctransport.Client) error {
				resp, err := c.RemoveSlot(ctx, &grpctransport.SlotIDRequest{SlotID: args[0]})
				if err != nil {
					return err
				}
				return printSlots(cmd.OutOrStdout(), []grpctransport.Slot{resp.Slot})
			})
		},
	}
}

func newAdminForceCancelCmd(opts *adminOptions) *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "force-cancel SLOT_ID",
		Short: "Cancel a client's booking and notify the client",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, c *grpctransport.Client) error {
				resp, err := c.ForceCancel(ctx, &grpctransport.ForceCancelRequest{SlotID: args[0], Reason: reason})
				if err != nil {
					return err
				}
				return printSlots(cmd.OutOrStdout(), []grpctransport.Slot{resp.Slot})
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "reason shown to the client")
	return cmd
}

func newAdminDayCmd(
	opts *adminOptions,
	name, short string,
	fn func(ctx context.Context, c *grpctransport.Client, date string) (string, error),
) *cobra.Command {
	return &cobra.Command{
		Use:   name + " DATE",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(ctx context.Context, c *grpctransport.Client) error {
				msg, err := fn(ctx, c, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), msg)
				return nil
			})
		},
	}
}

func printSlots(w io.Writer, slots []grpctransport.Slot) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDATE\tWINDOW\tSTATE\tCLIENT")
	for _, s := range slots {
		client := "-"
		if s.ClientID != nil {
			client = fmt.Sprintf("%d %s", *s.ClientID, s.ClientName)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s–%s\t%s\t%s\n", s.ID, s.Date, s.StartTime, s.EndTime, s.State, strings.TrimSpace(client))
	}
	return tw.Flush()
}
