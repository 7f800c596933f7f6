package cli

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/dmitrijs2005/mywarranties/internal/client/alarm"
	"github.com/dmitrijs2005/mywarranties/internal/client/client"
	"github.com/dmitrijs2005/mywarranties/internal/client/config"
	"github.com/dmitrijs2005/mywarranties/internal/client/models"
	"github.com/dmitrijs2005/mywarranties/internal/client/notify"
	"github.com/dmitrijs2005/mywarranties/internal/client/services"
	"github.com/dmitrijs2005/mywarranties/internal/logging"
	"github.com/dmitrijs2005/mywarranties/internal/timex"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Mode string

const (
	ModeOffline Mode = "offline"
	ModeOnline  Mode = "online"
)

const onlineCheckInterval = 30 * time.Second

type recordAPI interface {
	Create(ctx context.Context, in services.NewRecord) (models.WarrantyRecord, error)
	Update(ctx context.Context, id string, edit services.RecordEdit) (models.WarrantyRecord, error)
	Delete(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (models.WarrantyRecord, error)
	List(ctx context.Context) ([]models.WarrantyRecord, error)
	Conflicts(ctx context.Context) ([]models.ConflictEntry, error)
	ResolveConflict(ctx context.Context, id string, keepLocal bool) (models.WarrantyRecord, error)
	AttachReceipt(ctx context.Context, id string, blob []byte) (models.WarrantyRecord, error)
	ReceiptURL(ctx context.Context, id string) (string, error)
	DownloadReceipt(ctx context.Context, id string) ([]byte, error)
}

type syncer interface {
	Cycle(ctx context.Context) (services.CycleReport, error)
}

type triggerLister interface {
	Triggers(ctx context.Context) ([]models.ReminderTrigger, error)
}

// App is the device agent: the local store, the sync engine, the reminder
// scheduler with its alarm runner, and the REPL on top.
type App struct {
	config    *config.Config
	log       logging.Logger
	logCloser io.Closer

	store     *client.Store
	remote    client.Client
	records   recordAPI
	engine    syncer
	scheduler *services.Scheduler
	triggers  triggerLister
	runner    *alarm.Runner

	reader *bufio.Reader
	out    io.Writer

	modeMu sync.Mutex
	mode   Mode
}

// newLogger writes JSON logs to a rotating file when one is configured,
// so they do not interleave with the REPL.
func newLogger(c *config.Config) (logging.Logger, io.Closer) {
	if c.LogFile == "" {
		return logging.NewJSONLogger(os.Stderr, c.LogLevel), io.NopCloser(os.Stderr)
	}
	w := &lumberjack.Logger{
		Filename:   c.LogFile,
		MaxSize:    10,
		MaxBackups: 3,
		MaxAge:     28,
	}
	return logging.NewJSONLogger(w, c.LogLevel), w
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	log, logCloser := newLogger(c)

	store, err := client.InitDatabase(ctx, c.DatabaseDSN)
	if err != nil {
		log.Error(ctx, "error initializing database", "error", err)
		_ = logCloser.Close()
		return nil, err
	}

	remote, err := client.NewGRPCClient(c.ServerEndpointAddr, c.AccessToken)
	if err != nil {
		_ = store.Close()
		_ = logCloser.Close()
		return nil, err
	}

	out := os.Stdout
	clock := timex.SystemClock{}
	runner := alarm.NewRunner()
	dispatcher := notify.Multi{notify.NewLogDispatcher(log), notify.NewWriterDispatcher(out)}

	scheduler := services.NewScheduler(store, runner, dispatcher, clock, c.LeadTime(), log)
	engine := services.NewEngine(store, remote, scheduler, clock, log, services.EngineConfig{
		Policy:         services.ConflictPolicy(c.ConflictPolicy),
		MaxPushRetries: c.MaxPushRetries,
		RetryBaseDelay: c.RetryBaseDelay,
		RetryMaxDelay:  c.RetryMaxDelay,
	})
	records := services.NewRecordService(store, remote, http.DefaultClient, scheduler, clock, c.OwnerID, log)

	return &App{
		config:    c,
		log:       log,
		logCloser: logCloser,
		store:     store,
		remote:    remote,
		records:   records,
		engine:    engine,
		scheduler: scheduler,
		triggers:  scheduler,
		runner:    runner,
		reader:    bufio.NewReader(os.Stdin),
		out:       out,
		mode:      ModeOffline,
	}, nil
}

func (a *App) Close() error {
	return errors.Join(a.remote.Close(), a.store.Close(), a.logCloser.Close())
}

func (a *App) setMode(ctx context.Context, mode Mode) {
	a.modeMu.Lock()
	defer a.modeMu.Unlock()
	if a.mode != mode {
		a.mode = mode
		a.log.Info(ctx, "connectivity changed", "mode", mode)
	}
}

func (a *App) getStatus() string {
	a.modeMu.Lock()
	defer a.modeMu.Unlock()
	return "(" + string(a.mode) + ")"
}

// StartOnlineStatusWatcher pings the server every interval and flips the
// mode shown in the prompt.
func (a *App) StartOnlineStatusWatcher(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	check := func() {
		pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		if err := a.remote.Ping(pctx); err != nil {
			a.setMode(ctx, ModeOffline)
		} else {
			a.setMode(ctx, ModeOnline)
		}
	}

	check()
	for {
		select {
		case <-ticker.C:
			check()
		case <-ctx.Done():
			return
		}
	}
}
