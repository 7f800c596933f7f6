package cli

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dmitrijs2005/mywarranties/internal/client/services"
	"github.com/dmitrijs2005/mywarranties/internal/filex"
)

const receiptsDir = "receipts"

func formatDate(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format(time.DateOnly)
}

func formatStamp(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format(time.DateTime)
}

// Add asks for a new warranty and stores it locally.
func (a *App) Add(ctx context.Context) error {
	name, err := GetSimpleText(a.reader, "Product name", a.out)
	if err != nil {
		return err
	}
	purchase, err := GetDate(a.reader, "Purchase date", a.out, false)
	if err != nil {
		return err
	}
	expiration, err := GetDate(a.reader, "Expiration date, empty to enter a warranty length", a.out, true)
	if err != nil {
		return err
	}
	var months int
	if expiration.IsZero() {
		if months, err = GetInt(a.reader, "Warranty length in months", a.out); err != nil {
			return err
		}
	}

	rec, err := a.records.Create(ctx, services.NewRecord{
		ProductName:    name,
		PurchaseDate:   purchase,
		ExpirationDate: expiration,
		WarrantyMonths: months,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Added %s, expires %s\n", rec.ID, formatDate(rec.ExpirationDate))
	return nil
}

func (a *App) List(ctx context.Context) error {
	recs, err := a.records.List(ctx)
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		fmt.Fprintln(a.out, "No warranties yet.")
		return nil
	}

	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tPRODUCT\tEXPIRES\tSTATE")
	for _, r := range recs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.ID, r.ProductName, formatDate(r.ExpirationDate), r.SyncState)
	}
	return tw.Flush()
}

func (a *App) Show(ctx context.Context, args []string) error {
	id, err := idArg(a.reader, args, "Record id", a.out)
	if err != nil {
		return err
	}
	r, err := a.records.Get(ctx, id)
	if err != nil {
		return err
	}

	receipt := r.ReceiptRef
	if receipt == "" {
		receipt = "-"
	}
	fmt.Fprintf(a.out, "ID:         %s\n", r.ID)
	fmt.Fprintf(a.out, "Product:    %s\n", r.ProductName)
	fmt.Fprintf(a.out, "Purchased:  %s\n", formatDate(r.PurchaseDate))
	fmt.Fprintf(a.out, "Expires:    %s\n", formatDate(r.ExpirationDate))
	fmt.Fprintf(a.out, "Receipt:    %s\n", receipt)
	fmt.Fprintf(a.out, "State:      %s\n", r.SyncState)
	fmt.Fprintf(a.out, "Updated:    %s\n", formatStamp(r.UpdatedAt))
	return nil
}

// Edit asks for each field; empty answers keep the current value.
func (a *App) Edit(ctx context.Context, args []string) error {
	id, err := idArg(a.reader, args, "Record id", a.out)
	if err != nil {
		return err
	}
	cur, err := a.records.Get(ctx, id)
	if err != nil {
		return err
	}

	var edit services.RecordEdit

	name, err := GetSimpleText(a.reader, fmt.Sprintf("Product name [%s]", cur.ProductName), a.out)
	if err != nil {
		return err
	}
	if name != "" {
		edit.ProductName = &name
	}

	purchase, err := GetDate(a.reader, fmt.Sprintf("Purchase date [%s]", formatDate(cur.PurchaseDate)), a.out, true)
	if err != nil {
		return err
	}
	if !purchase.IsZero() {
		edit.PurchaseDate = &purchase
	}

	expiration, err := GetDate(a.reader, fmt.Sprintf("Expiration date [%s]", formatDate(cur.ExpirationDate)), a.out, true)
	if err != nil {
		return err
	}
	if !expiration.IsZero() {
		edit.ExpirationDate = &expiration
	} else {
		months, err := GetInt(a.reader, "Warranty length in months, empty to keep", a.out)
		if err != nil {
			return err
		}
		if months > 0 {
			edit.WarrantyMonths = &months
		}
	}

	rec, err := a.records.Update(ctx, id, edit)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Updated %s, expires %s\n", rec.ID, formatDate(rec.ExpirationDate))
	return nil
}

func (a *App) Delete(ctx context.Context, args []string) error {
	id, err := idArg(a.reader, args, "Record id to delete", a.out)
	if err != nil {
		return err
	}
	if err := a.records.Delete(ctx, id); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Deleted %s\n", id)
	return nil
}

// Attach uploads a local file as the record's receipt.
func (a *App) Attach(ctx context.Context, args []string) error {
	id, err := idArg(a.reader, args, "Record id", a.out)
	if err != nil {
		return err
	}
	var path string
	if len(args) > 1 {
		path = args[1]
	} else if path, err = GetSimpleText(a.reader, "Receipt file path", a.out); err != nil {
		return err
	}

	blob, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	rec, err := a.records.AttachReceipt(ctx, id, blob)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Receipt stored as %s\n", rec.ReceiptRef)
	return nil
}

// Receipt prints a download link, or saves the receipt under ./receipts
// when called as "receipt <id> save".
func (a *App) Receipt(ctx context.Context, args []string) error {
	id, err := idArg(a.reader, args, "Record id", a.out)
	if err != nil {
		return err
	}

	if len(args) > 1 && args[1] == "save" {
		blob, err := a.records.DownloadReceipt(ctx, id)
		if err != nil {
			return err
		}
		path, err := filex.WriteInSubDir(receiptsDir, id+".receipt", blob)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "Saved %d bytes to %s\n", len(blob), path)
		return nil
	}

	url, err := a.records.ReceiptURL(ctx, id)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, url)
	return nil
}

func (a *App) Sync(ctx context.Context) error {
	report, err := a.engine.Cycle(ctx)
	fmt.Fprintf(a.out, "pulled %d, pushed %d, conflicts %d, purged %d, deferred %d\n",
		report.Pulled, report.Pushed, report.Conflicts, report.Purged, report.Deferred)
	if len(report.Rejected) > 0 {
		fmt.Fprintf(a.out, "rejected by server: %s\n", strings.Join(report.Rejected, ", "))
	}
	return err
}

func (a *App) Conflicts(ctx context.Context) error {
	entries, err := a.records.Conflicts(ctx)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(a.out, "No open conflicts.")
		return nil
	}

	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RECORD\tOUTCOME\tYOUR VERSION\tYOUR CHANGE\tSERVER CHANGE")
	for _, e := range entries {
		mine := "-"
		if s := e.LocalSnapshot; s != nil {
			mine = fmt.Sprintf("%s, expires %s", s.ProductName, formatDate(s.ExpirationDate))
			if s.Deleted {
				mine = "deleted"
			}
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", e.RecordID, e.Outcome, mine,
			formatStamp(e.LocalUpdatedAt), formatStamp(e.RemoteUpdatedAt))
	}
	return tw.Flush()
}

// Resolve settles a conflict: "local" re-sends your version, "remote"
// keeps what is stored now.
func (a *App) Resolve(ctx context.Context, args []string) error {
	id, err := idArg(a.reader, args, "Record id", a.out)
	if err != nil {
		return err
	}
	var side string
	if len(args) > 1 {
		side = args[1]
	} else if side, err = GetSimpleText(a.reader, "Keep which version? (local/remote)", a.out); err != nil {
		return err
	}

	var keepLocal bool
	switch side {
	case "local":
		keepLocal = true
	case "remote":
	default:
		return fmt.Errorf("expected local or remote, got %q", side)
	}

	rec, err := a.records.ResolveConflict(ctx, id, keepLocal)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Resolved %s, now %s\n", id, rec.SyncState)
	return nil
}

func (a *App) Triggers(ctx context.Context) error {
	ts, err := a.triggers.Triggers(ctx)
	if err != nil {
		return err
	}
	if len(ts) == 0 {
		fmt.Fprintln(a.out, "No reminders scheduled.")
		return nil
	}

	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RECORD\tFIRES\tEXPIRES\tGEN\tFIRED")
	for _, t := range ts {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%t\n", t.RecordID, formatDate(t.FireAt), formatDate(t.ExpirationDate), t.Generation, t.Fired)
	}
	return tw.Flush()
}
