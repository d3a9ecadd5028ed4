package terminal

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/ashureev/pharma-chat/internal/domain"
	"github.com/ashureev/pharma-chat/internal/exchange"
)

const timeLayout = "2006-01-02 15:04"

// PrintSessions writes a session picker table. Rows are numbered from 1 in
// the order given, which is the number /open accepts. The active session is
// marked with an asterisk.
func PrintSessions(w io.Writer, sessions []exchange.Summary) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "\t#\tID\tUPDATED\tMESSAGES\tTITLE")
	for i, s := range sessions {
		marker := ""
		if s.Active {
			marker = "*"
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%d\t%s\n", marker, i+1, s.ID, localTime(s.UpdatedAt), s.Messages, s.Title)
	}
	return tw.Flush()
}

// PrintOrders writes the local order history, oldest first.
func PrintOrders(w io.Writer, orders []domain.OrderRecord) error {
	if len(orders) == 0 {
		_, err := fmt.Fprintln(w, "No orders yet.")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ORDERED\tUSER\tMEDICINE\tQTY\tUNIT\tTOTAL")
	for _, o := range orders {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%.2f\t%.2f\n",
			localTime(o.OrderedAt), o.Username, o.MedicineName, o.Quantity, o.UnitPrice, o.TotalPrice)
	}
	return tw.Flush()
}

func localTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format(timeLayout)
}
