package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/orderdesk/internal/app"
	"github.com/Additional-Code/orderdesk/internal/desk"
	"github.com/Additional-Code/orderdesk/internal/entity"
)

type deskFlags struct {
	page     int
	pageSize int
	search   string
	status   string
	from     string
	to       string
}

func (f *deskFlags) register(cmd *cobra.Command) {
	cmd.Flags().IntVar(&f.page, "page", 1, "Page to load (1-based)")
	cmd.Flags().IntVar(&f.pageSize, "page-size", 0, "Orders per page (defaults to DESK_DEFAULT_PAGE_SIZE)")
	cmd.Flags().StringVar(&f.search, "search", "", "Search id, buyer, phone, seller, store or product")
	cmd.Flags().StringVar(&f.status, "status", "", "Only orders with this status")
	cmd.Flags().StringVar(&f.from, "from", "", "First day of the date range (YYYY-MM-DD)")
	cmd.Flags().StringVar(&f.to, "to", "", "Last day of the date range (YYYY-MM-DD)")
}

type deskDeps struct {
	fx.In

	Backend desk.Backend
	Options desk.Options
	Metrics *desk.Metrics
	Logger  *zap.Logger
}

// loadDesk loads one page into a fresh controller and applies the flag criteria.
func loadDesk(ctx context.Context, deps deskDeps, flags deskFlags) (*desk.Controller, desk.View, error) {
	ctrl := desk.NewController(deps.Backend, deps.Logger, deps.Metrics, deps.Options)
	if _, err := ctrl.Load(ctx, flags.page, flags.pageSize); err != nil {
		return nil, desk.View{}, err
	}
	criteria, err := desk.ParseCriteria(flags.search, flags.status, flags.from, flags.to, deps.Options.Location)
	if err != nil {
		return nil, desk.View{}, err
	}
	return ctrl, ctrl.SetCriteria(criteria), nil
}

func newDeskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "desk",
		Short: "Inspect orders through the order API",
	}
	cmd.AddCommand(newDeskStatsCmd(), newDeskExportCmd())
	return cmd
}

func newDeskStatsCmd() *cobra.Command {
	var flags deskFlags
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print statistics for one page of orders",
		RunE: func(cmd *cobra.Command, args []string) error {
			var deps deskDeps
			opts := fx.Options(app.Desk, fx.Populate(&deps))
			return runOnce(cmd.Context(), opts, func(ctx context.Context) error {
				_, view, err := loadDesk(ctx, deps, flags)
				if err != nil {
					return err
				}
				if asJSON {
					enc := json.NewEncoder(cmd.OutOrStdout())
					enc.SetIndent("", "  ")
					return enc.Encode(view)
				}
				return printStats(cmd.OutOrStdout(), view, deps.Options.Location)
			})
		},
	}
	flags.register(cmd)
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the full desk view as JSON")
	return cmd
}

func newDeskExportCmd() *cobra.Command {
	var flags deskFlags
	var output string
	var ids []string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the filtered orders of one page as CSV",
		RunE: func(cmd *cobra.Command, args []string) error {
			var deps deskDeps
			opts := fx.Options(app.Desk, fx.Populate(&deps))
			return runOnce(cmd.Context(), opts, func(ctx context.Context) error {
				ctrl, _, err := loadDesk(ctx, deps, flags)
				if err != nil {
					return err
				}

				w := cmd.OutOrStdout()
				if output != "" && output != "-" {
					f, err := os.Create(output)
					if err != nil {
						return err
					}
					defer f.Close()
					w = f
				}

				rows, err := ctrl.Export(w, ids)
				if err != nil {
					return err
				}
				if w != cmd.OutOrStdout() {
					fmt.Fprintf(cmd.ErrOrStderr(), "exported %d orders to %s\n", rows, output)
				}
				return nil
			})
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVarP(&output, "output", "o", "", "Destination file (stdout when empty)")
	cmd.Flags().StringSliceVar(&ids, "ids", nil, "Only export these order ids")
	return cmd
}

func printStats(w io.Writer, view desk.View, loc *time.Location) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	s := view.PageStatistics
	fmt.Fprintf(tw, "Page\t%d/%d (%d orders in total)\n", view.Page, view.TotalPages, view.TotalCount)
	fmt.Fprintf(tw, "Orders on page\t%d\n", s.TotalOrders)
	fmt.Fprintf(tw, "Pending\t%d\n", s.PendingOrders)
	fmt.Fprintf(tw, "Completed\t%d (%d%%)\n", s.CompletedOrders, s.CompletionRate)
	fmt.Fprintf(tw, "Cancelled\t%d\n", s.CancelledOrders)
	fmt.Fprintf(tw, "Paid\t%d (%d%%)\n", s.PaidOrders, s.PaymentRate)
	fmt.Fprintf(tw, "Revenue today\t%s\n", desk.FormatAmount(nil, s.TodayRevenue))
	fmt.Fprintf(tw, "Revenue this month\t%s\n", desk.FormatAmount(nil, s.MonthlyRevenue))
	fmt.Fprintf(tw, "Revenue\t%s\n", desk.FormatAmount(nil, s.TotalRevenue))
	fmt.Fprintf(tw, "Average paid order\t%s\n", desk.FormatAmount(nil, s.AverageOrderValue))
	if err := tw.Flush(); err != nil {
		return err
	}

	if !view.Criteria.Empty() {
		fmt.Fprintf(w, "\n%d of %d orders match the filters\n", view.Matched, s.TotalOrders)
	}
	if len(view.Orders) == 0 {
		return nil
	}
	fmt.Fprintln(w)
	tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tBUYER\tSTATUS\tTOTAL\tCREATED")
	for _, o := range view.Orders {
		created := desk.FormatDate(o.CreatedAt, loc)
		if created == "" {
			created = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			desk.ShortID(o.ID), o.BuyerName, entity.Status(o.Status).Label(), desk.FormatAmount(nil, o.TotalAmount), created)
	}
	return tw.Flush()
}
