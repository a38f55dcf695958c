package docstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

const (
	defaultReconnectBackoff = 100 * time.Millisecond
	listenerCloseTimeout    = 5 * time.Second
)

// changeListener holds the one LISTEN connection of a postgres store and fans
// notifications out to watchers. The connection is dialled outside the pool,
// so any number of watchers costs a single server connection and never
// competes with transactions for pool slots.
type changeListener struct {
	connConfig       *pgx.ConnConfig
	logger           zerolog.Logger
	reconnectBackoff time.Duration

	mu      sync.Mutex
	subs    map[uint64]*subscriber
	nextID  uint64
	started bool
	closed  bool
	cancel  context.CancelFunc
	done    chan struct{}
	stopped chan struct{}
}

// subscriber receives a coalesced signal whenever its collection changes or
// the listener had to reconnect and may have missed notifications.
type subscriber struct {
	id         uint64
	collection string
	notify     chan struct{}
}

func newChangeListener(connConfig *pgx.ConnConfig, logger zerolog.Logger) *changeListener {
	return &changeListener{
		connConfig:       connConfig,
		logger:           logger.With().Str("component", "docstore-listener").Logger(),
		reconnectBackoff: defaultReconnectBackoff,
		subs:             map[uint64]*subscriber{},
		stopped:          make(chan struct{}),
	}
}

// subscribe registers a watcher for collection, starting the listener on
// first use. LISTEN is active when subscribe returns, so a snapshot read
// afterwards cannot miss a change committed after it.
func (l *changeListener) subscribe(ctx context.Context, collection string) (*subscriber, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil, ErrClosed
	}

	if !l.started {
		conn, err := l.connect(ctx)
		if err != nil {
			return nil, err
		}
		runCtx, cancel := context.WithCancel(context.Background())
		l.cancel = cancel
		l.done = make(chan struct{})
		l.started = true
		go l.run(runCtx, conn)
	}

	l.nextID++
	sub := &subscriber{
		id:         l.nextID,
		collection: collection,
		notify:     make(chan struct{}, 1),
	}
	l.subs[sub.id] = sub
	return sub, nil
}

func (l *changeListener) unsubscribe(sub *subscriber) {
	l.mu.Lock()
	delete(l.subs, sub.id)
	l.mu.Unlock()
}

func (l *changeListener) subscribers() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.subs)
}

// close stops the listener and waits for its connection to be released.
func (l *changeListener) close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	close(l.stopped)
	started, cancel, done := l.started, l.cancel, l.done
	l.mu.Unlock()

	if started {
		cancel()
		<-done
	}
}

func (l *changeListener) connect(ctx context.Context) (*pgx.Conn, error) {
	conn, err := pgx.ConnectConfig(ctx, l.connConfig.Copy())
	if err != nil {
		return nil, fmt.Errorf("failed to open listen connection: %w", err)
	}
	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{NotifyChannel}.Sanitize()); err != nil {
		closeConn(conn)
		return nil, fmt.Errorf("failed to listen on %s: %w", NotifyChannel, err)
	}
	return conn, nil
}

func (l *changeListener) run(ctx context.Context, conn *pgx.Conn) {
	defer close(l.done)

	for {
		err := l.receive(ctx, conn)
		closeConn(conn)
		if ctx.Err() != nil {
			return
		}

		l.logger.Warn().Err(err).Msg("change listener connection lost, reconnecting")
		if conn = l.reconnect(ctx); conn == nil {
			return
		}

		// Notifications sent while disconnected are gone; every watcher re-reads.
		l.broadcast(func(*subscriber) bool { return true })
	}
}

func (l *changeListener) receive(ctx context.Context, conn *pgx.Conn) error {
	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			return err
		}
		l.broadcast(func(sub *subscriber) bool { return sub.collection == n.Payload })
	}
}

func (l *changeListener) reconnect(ctx context.Context) *pgx.Conn {
	for attempt := 1; ; attempt++ {
		conn, err := l.connect(ctx)
		if err == nil {
			l.logger.Info().Int("attempt", attempt).Msg("change listener reconnected")
			return conn
		}
		if ctx.Err() != nil {
			return nil
		}

		delay := max(backoff(l.reconnectBackoff, attempt), l.reconnectBackoff)
		l.logger.Warn().
			Err(err).
			Int("attempt", attempt).
			Dur("backoff", delay).
			Msg("change listener reconnect failed")
		if sleep(ctx, delay) != nil {
			return nil
		}
	}
}

// broadcast signals every subscriber matched by match. A watcher that has a
// signal pending already will re-read, so extra signals are dropped.
func (l *changeListener) broadcast(match func(*subscriber) bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, sub := range l.subs {
		if !match(sub) {
			continue
		}
		select {
		case sub.notify <- struct{}{}:
		default:
		}
	}
}

func closeConn(conn *pgx.Conn) {
	ctx, cancel := context.WithTimeout(context.Background(), listenerCloseTimeout)
	defer cancel()
	_ = conn.Close(ctx)
}
