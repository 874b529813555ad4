package database

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
	"github.com/shopmonkeyus/go-common/logger"
	"github.com/shopmonkeyus/procure/internal/util"
)

const (
	DriverPQ  = "postgres"
	DriverPGX = "pgx"

	DefaultMaxOpenConns    = 20
	DefaultMaxIdleConns    = 5
	DefaultConnMaxIdleTime = 30 * time.Second
	DefaultConnectTimeout  = 5 * time.Second
)

var (
	// ErrMissingURL is returned by Open when no connection url was configured.
	ErrMissingURL = errors.New("missing database url")

	// ErrClosed is returned when a transaction is requested after Close.
	ErrClosed = errors.New("database is closed")
)

// Config is the connection configuration for the pool.
type Config struct {
	URL             string
	Driver          string
	SSL             bool
	ApplicationName string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxIdleTime time.Duration
	ConnectTimeout  time.Duration
}

func (c *Config) defaults() {
	if c.Driver == "" {
		c.Driver = DriverPQ
	}
	if c.ApplicationName == "" {
		c.ApplicationName = "procure"
	}
	if c.MaxOpenConns <= 0 {
		c.MaxOpenConns = DefaultMaxOpenConns
	}
	if c.MaxIdleConns <= 0 {
		c.MaxIdleConns = DefaultMaxIdleConns
	}
	if c.ConnMaxIdleTime <= 0 {
		c.ConnMaxIdleTime = DefaultConnMaxIdleTime
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
}

// DB is the process scoped connection pool. It is created once at startup and
// passed to every component that talks to the database.
type DB struct {
	*sql.DB
	logger         logger.Logger
	acquireTimeout time.Duration
	waitGroup      sync.WaitGroup
	once           sync.Once
	lock           sync.Mutex
	closed         bool
}

// New wraps an existing *sql.DB.
func New(log logger.Logger, db *sql.DB) *DB {
	return &DB{
		DB:             db,
		logger:         log.WithPrefix("[database]"),
		acquireTimeout: DefaultConnectTimeout,
	}
}

// Open creates the pool and verifies connectivity.
func Open(ctx context.Context, log logger.Logger, config Config) (*DB, error) {
	if config.URL == "" {
		return nil, ErrMissingURL
	}
	config.defaults()
	switch config.Driver {
	case DriverPQ, DriverPGX:
	case "postgresql":
		config.Driver = DriverPQ
	default:
		return nil, errors.Newf("unsupported driver: %s", config.Driver)
	}
	urlstr, err := ConnectionString(config)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(config.Driver, urlstr)
	if err != nil {
		return nil, errors.Wrap(err, "unable to create connection")
	}
	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)
	pctx, cancel := context.WithTimeout(ctx, config.ConnectTimeout)
	defer cancel()
	if err := db.PingContext(pctx); err != nil {
		db.Close()
		masked, _ := util.MaskURL(urlstr)
		return nil, errors.Wrapf(err, "unable to connect to %s", masked)
	}
	res := New(log, db)
	res.acquireTimeout = config.ConnectTimeout
	res.logger.Debug("connected using %s driver (max open: %d, idle timeout: %v)", config.Driver, config.MaxOpenConns, config.ConnMaxIdleTime)
	return res, nil
}

// acquire reserves a slot in the wait group unless the pool is closed.
func (d *DB) acquire() bool {
	d.lock.Lock()
	defer d.lock.Unlock()
	if d.closed {
		return false
	}
	d.waitGroup.Add(1)
	return true
}

// WithTx runs fn inside a transaction. The transaction is committed when fn
// returns nil and rolled back on any error or panic. Waiting for a pooled
// connection is bounded by the connect timeout regardless of ctx.
func (d *DB) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	if !d.acquire() {
		return ErrClosed
	}
	defer d.waitGroup.Done()
	cctx, cancel := context.WithTimeout(ctx, d.acquireTimeout)
	conn, err := d.Conn(cctx)
	cancel()
	if err != nil {
		return errors.Wrapf(err, "unable to acquire connection within %v", d.acquireTimeout)
	}
	defer conn.Close()
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "unable to start transaction")
	}
	var success bool
	defer func() {
		if !success {
			if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
				d.logger.Warn("rollback failed: %s", err)
			}
		}
	}()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "unable to commit transaction")
	}
	success = true
	return nil
}

// Ping checks connectivity.
func (d *DB) Ping(ctx context.Context) error {
	return d.PingContext(ctx)
}

// Close waits for in-flight transactions and then closes the pool. It is safe to call more than once.
func (d *DB) Close() error {
	var err error
	d.once.Do(func() {
		d.lock.Lock()
		d.closed = true
		d.lock.Unlock()
		d.logger.Debug("waiting on waitgroup")
		d.waitGroup.Wait()
		d.logger.Debug("closing pool")
		err = d.DB.Close()
		d.logger.Debug("closed pool")
	})
	return err
}
