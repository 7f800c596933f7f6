// Package notify delivers rendered reminders to the user.
package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/dmitrijs2005/mywarranties/internal/client/models"
	"github.com/dmitrijs2005/mywarranties/internal/logging"
)

// Dispatcher is the push transport collaborator. Implementations must be
// safe for concurrent use.
type Dispatcher interface {
	Dispatch(ctx context.Context, n models.Notification) error
}

// Render builds the reminder for rec.
func Render(rec models.WarrantyRecord) models.Notification {
	return models.Notification{
		Title:    "Warranty expiring soon",
		Body:     fmt.Sprintf("The warranty for %s expires on %s.", rec.ProductName, rec.ExpirationDate.Format(time.DateOnly)),
		RecordID: rec.ID,
	}
}

// LogDispatcher writes notifications to a structured log.
type LogDispatcher struct {
	log logging.Logger
}

func NewLogDispatcher(log logging.Logger) *LogDispatcher {
	return &LogDispatcher{log: log}
}

func (d *LogDispatcher) Dispatch(ctx context.Context, n models.Notification) error {
	d.log.Info(ctx, "reminder", "record_id", n.RecordID, "title", n.Title, "body", n.Body)
	return nil
}

// WriterDispatcher prints notifications as plain lines, e.g. to the REPL.
type WriterDispatcher struct {
	mu sync.Mutex
	w  io.Writer
}

func NewWriterDispatcher(w io.Writer) *WriterDispatcher {
	return &WriterDispatcher{w: w}
}

func (d *WriterDispatcher) Dispatch(_ context.Context, n models.Notification) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := fmt.Fprintf(d.w, "\n[reminder] %s: %s (%s)\n", n.Title, n.Body, n.RecordID)
	return err
}

// Multi fans a notification out to every dispatcher and joins their errors.
type Multi []Dispatcher

func (m Multi) Dispatch(ctx context.Context, n models.Notification) error {
	var errs []error
	for _, d := range m {
		if err := d.Dispatch(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
