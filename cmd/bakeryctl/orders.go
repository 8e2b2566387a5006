package main

import (
	"context"
	"fmt"
	"io"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/jogardn/bakery-orders/internal/notify"
	"github.com/jogardn/bakery-orders/internal/store"
	"github.com/jogardn/bakery-orders/pkg/models"
)

var ordersCmd = &cobra.Command{
	Use:   "orders",
	Short: "List orders, newest first",
	Args:  cobra.NoArgs,
	RunE: withStore(func(ctx context.Context, st store.Store, cmd *cobra.Command, _ []string) error {
		status, _ := cmd.Flags().GetString("status")
		limit, _ := cmd.Flags().GetInt("limit")

		orders, err := st.Orders().List(ctx, store.OrderFilter{})
		if err != nil {
			return err
		}
		return renderOrders(cmd.OutOrStdout(), filterOrders(orders, models.OrderStatus(status), limit))
	}),
}

func init() {
	ordersCmd.Flags().String("status", "", "only show orders in this status (received, processing, completed)")
	ordersCmd.Flags().Int("limit", 50, "maximum number of orders to show, 0 for all")
}

func filterOrders(orders []models.Order, status models.OrderStatus, limit int) []models.Order {
	out := make([]models.Order, 0, len(orders))
	for _, o := range orders {
		if status != "" && o.Status != status {
			continue
		}
		out = append(out, o)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

func customer(o models.Order) string {
	if o.IsGuest() && o.Guest != nil {
		return fmt.Sprintf("%s <%s> (guest)", o.Guest.Name, o.Guest.Email)
	}
	return o.UserID
}

func renderOrders(w io.Writer, orders []models.Order) error {
	table := tablewriter.NewWriter(w)
	table.Header("Number", "Placed", "Customer", "Mode", "Slot", "Boxes", "Total", "Status", "Paid")
	for _, o := range orders {
		mode, slot := "", ""
		if o.Reception.Reception != nil {
			date, clock := o.Reception.Slot()
			mode, slot = string(o.Reception.Mode()), date+" "+clock
		}
		paid := "no"
		if o.PaymentConfirmed {
			paid = "yes"
		}
		if err := table.Append([]string{
			o.Number(),
			o.CreatedAt.Format("2006-01-02 15:04"),
			customer(o),
			mode,
			slot,
			fmt.Sprint(len(o.Boxes)),
			notify.FormatCents(o.TotalCents),
			string(o.Status),
			paid,
		}); err != nil {
			return err
		}
	}
	return table.Render()
}
