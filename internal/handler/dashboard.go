package handler

import (
	"fmt"
	"io"
	"text/tabwriter"

	"gitlab.ozon.dev/pupkingeorgij/truckdispatch/internal/domain"
	"gitlab.ozon.dev/pupkingeorgij/truckdispatch/internal/orders"
)

const notAvailable = "N/A"

func renderDashboard(out io.Writer, snap orders.Snapshot) {
	if !snap.Notice.IsZero() {
		fmt.Fprintln(out, snap.Notice.String())
	}
	if snap.Loading {
		fmt.Fprintln(out, "Loading...")
		return
	}
	if snap.Empty || len(snap.Orders) == 0 {
		if snap.Notice.IsZero() {
			fmt.Fprintln(out, orders.EmptyText)
		}
		return
	}

	fmt.Fprintln(out, "Your orders:")
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tFROM\tTO\tTRUCKS\tTRUCK TYPE\tCOMPANY\tCARGO\tWEIGHT\tPICKUP\tDELIVERY\tSTATUS")
	for _, o := range snap.Orders {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			orNA(o.ID.String()),
			orNA(o.Location),
			orNA(o.Destination),
			o.NoOfTrucks,
			orNA(o.TypeOfTruck),
			orNA(o.CompanyName),
			orNA(o.CargoType),
			orNA(weight(o.CargoWeight)),
			orNA(o.PickupTime.String()),
			orNA(o.DeliveryTime.String()),
			orNA(o.Status),
		)
	}
	_ = tw.Flush()
}

func orNA(s string) string {
	if s == "" {
		return notAvailable
	}
	return s
}

func weight(w *domain.Weight) string {
	if w == nil {
		return ""
	}
	return w.String()
}
