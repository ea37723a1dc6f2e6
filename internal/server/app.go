// Package server wires together configuration, storage, and the TCP
// listener into a runnable application: it owns the process's top-level
// lifecycle, from opening the database connection through accepting
// connections to a clean shutdown on signal.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/fsxbroker/fsx/internal/filex"
	"github.com/fsxbroker/fsx/internal/logging"
	"github.com/fsxbroker/fsx/internal/server/config"
	"github.com/fsxbroker/fsx/internal/server/conn"
	"github.com/fsxbroker/fsx/internal/server/credential"
	"github.com/fsxbroker/fsx/internal/server/registry"
	"github.com/fsxbroker/fsx/internal/server/repositories/repomanager"
	"github.com/fsxbroker/fsx/internal/server/transfer"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// sweepInterval is how often the app checks for stale offers and
// abandoned transfers.
const sweepInterval = time.Minute

// defaultOfferTTL is how long an Offered transfer may sit unanswered
// before the sweep fails it, used when FSX_OFFER_TTL is unset.
const defaultOfferTTL = 5 * time.Minute

// App owns every long-lived dependency the server needs and the TCP
// accept loop that drives them.
type App struct {
	config *config.Config
	logger logging.Logger

	db      *sql.DB
	repos   repomanager.RepositoryManager
	cred    *credential.Service
	reg     *registry.Registry[conn.Conn]
	broker  *transfer.Broker
	storage  *filex.Store
	uploads  *conn.UploadTracker
	offerTTL time.Duration
}

// NewApp opens the database, runs pending migrations, and constructs
// every service the connection handler needs. It does not start
// listening; call Run for that.
func NewApp(c *config.Config) (*App, error) {
	logHandler := slog.NewJSONHandler(os.Stdout, nil)
	logger := logging.NewSlogLogger(slog.New(logHandler))

	db, err := sql.Open("pgx", c.DSN())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	repos, err := repomanager.NewPostgresRepositoryManager(db)
	if err != nil {
		return nil, fmt.Errorf("init repository manager: %w", err)
	}
	if err := repos.RunMigrations(context.Background(), db); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	store, err := filex.NewStore(c.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	cred := credential.New(db, repos, c.SessionTTL, logger)

	offerTTL := c.OfferTTL
	if offerTTL <= 0 {
		offerTTL = defaultOfferTTL
	}

	return &App{
		config:   c,
		logger:   logger,
		db:       db,
		repos:    repos,
		cred:     cred,
		reg:      registry.New[conn.Conn](),
		broker:   transfer.NewBroker(),
		storage:  store,
		uploads:  conn.NewUploadTracker(store),
		offerTTL: offerTTL,
	}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// Run starts the TCP listener and the background sweep loop, and blocks
// until the context is canceled or a termination signal arrives.
func (app *App) Run(ctx context.Context) error {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "starting server", "addr", app.config.TCPAddr)
	app.initSignalHandler(cancelFunc)

	ln, err := net.Listen("tcp", app.config.TCPAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", app.config.TCPAddr, err)
	}

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.acceptLoop(ctx, ln)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.sweepLoop(ctx)
	}()

	<-ctx.Done()
	app.logger.Info(ctx, "shutting down")
	_ = ln.Close()
	app.closeAllConnections(ctx)
	app.uploads.CloseAll()
	wg.Wait()

	return app.db.Close()
}

// closeAllConnections closes every connection the online registry still
// knows about, so none of them can keep writing to a staging file or
// block the process from exiting.
func (app *App) closeAllConnections(ctx context.Context) {
	live := app.reg.Snapshot()
	for _, c := range live {
		c.Close()
	}
	if len(live) > 0 {
		app.logger.Info(ctx, "closed connections for shutdown", "count", len(live))
	}
}

func (app *App) acceptLoop(ctx context.Context, ln net.Listener) {
	for {
		nc, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				app.logger.Warn(ctx, "accept failed", "err", err)
				continue
			}
		}

		c := conn.New(nc, app.cred, app.reg, app.broker, app.uploads, app.logger)
		go c.Serve(ctx)
	}
}

// sweepLoop periodically fails transfers that can no longer make
// progress and cleans up their staging files: an Offered transfer
// nobody answered within offerTTL, and an Accepted or Receiving
// transfer whose sender or receiver has since dropped off the online
// registry.
func (app *App) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	isOnline := func(token string) bool {
		_, ok := app.reg.Get(token)
		return ok
	}

	for {
		select {
		case <-ticker.C:
			app.reapTransfers(ctx, app.broker.SweepOfferTTL(app.offerTTL))
			app.reapTransfers(ctx, app.broker.SweepAbandoned(isOnline))
			app.revalidateSessions(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// revalidateSessions re-checks every connection the online registry
// currently holds against the credential service, so a session that
// expired or was revoked since login does not stay usable on a
// connection that never logs in again. A connection whose token no
// longer authenticates is closed outright rather than merely evicted,
// since its next inbound message would otherwise be treated as if it
// were still the owner of that token.
func (app *App) revalidateSessions(ctx context.Context) {
	for token, c := range app.reg.Snapshot() {
		if _, err := app.cred.Authenticate(ctx, token); err != nil {
			app.logger.Info(ctx, "session no longer valid, closing connection", "err", err)
			c.Close()
		}
	}
}

func (app *App) reapTransfers(ctx context.Context, reaped []*transfer.Transfer) {
	for _, t := range reaped {
		app.logger.Warn(ctx, "reaped transfer", "transfer_id", t.ID, "state", t.State, "sender", t.SenderUsername, "receiver", t.ReceiverUsername)
		if err := app.uploads.Abort(t.ID); err != nil {
			app.logger.Warn(ctx, "cleanup reaped transfer failed", "transfer_id", t.ID, "err", err)
		}
		app.broker.Remove(t.ID)
	}
}
