package transport

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	_ "github.com/go-sql-driver/mysql"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/teester/teester/internal/logging"
)

// Supported database types.
const (
	DBTypeMySQL  = "MYSQL"
	DBTypeSQLite = "SQLITE"
	DBTypeMongo  = "MONGO"
)

// ErrUnsupportedDBType is returned for a database type with no driver.
var ErrUnsupportedDBType = errors.New("unsupported database type")

// QueryConfig identifies the database a query runs against.
type QueryConfig struct {
	DBType string `json:"dbType"`
	DBURL  string `json:"dbUrl"`
}

func (c QueryConfig) key() string {
	return strings.ToUpper(c.DBType) + "|" + c.DBURL
}

// DefaultCacheSize is the number of open database handles an Executor keeps.
const DefaultCacheSize = 16

const mongoDisconnectTimeout = 5 * time.Second

// Executor runs queries directly against MySQL, SQLite or MongoDB. Handles
// are cached per type and URL. An evicted handle is closed once no query
// is still using it.
type Executor struct {
	mu     sync.Mutex
	sqlDBs *lru.Cache[string, *handle[*sql.DB]]
	mongos *lru.Cache[string, *handle[*mongo.Client]]
	logger *zap.Logger
}

// handle is a cached connection with a count of in-flight users.
// refs and evicted are guarded by Executor.mu.
type handle[T any] struct {
	key     string
	conn    T
	refs    int
	evicted bool
}

// release drops one reference and closes the connection when it was the
// last user of an evicted handle.
func release[T any](mu *sync.Mutex, h *handle[T], closeFn func(*handle[T])) {
	mu.Lock()
	h.refs--
	last := h.evicted && h.refs == 0
	mu.Unlock()
	if last {
		closeFn(h)
	}
}

// NewExecutor creates an Executor caching up to size handles per kind.
func NewExecutor(size int, logger *zap.Logger) (*Executor, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Executor{logger: logger.With(logging.Component("query-transport"))}

	// Eviction runs inside Add or Purge, which are only called with e.mu held.
	sqlDBs, err := lru.NewWithEvict(size, func(_ string, h *handle[*sql.DB]) {
		h.evicted = true
		if h.refs == 0 {
			e.closeSQL(h)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("create sql cache: %w", err)
	}

	mongos, err := lru.NewWithEvict(size, func(_ string, h *handle[*mongo.Client]) {
		h.evicted = true
		if h.refs == 0 {
			e.closeMongo(h)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("create mongo cache: %w", err)
	}

	e.sqlDBs, e.mongos = sqlDBs, mongos
	return e, nil
}

func (e *Executor) closeSQL(h *handle[*sql.DB]) {
	if err := h.conn.Close(); err != nil {
		e.logger.Warn("close evicted database", zap.String("key", redact(h.key)), zap.Error(err))
	}
}

func (e *Executor) closeMongo(h *handle[*mongo.Client]) {
	ctx, cancel := context.WithTimeout(context.Background(), mongoDisconnectTimeout)
	defer cancel()
	if err := h.conn.Disconnect(ctx); err != nil {
		e.logger.Warn("disconnect evicted mongo client", zap.String("key", redact(h.key)), zap.Error(err))
	}
}

// RunQuery executes query and reports only whether it succeeded.
func (e *Executor) RunQuery(ctx context.Context, cfg QueryConfig, query string) error {
	start := time.Now()
	err := e.run(ctx, cfg, query)
	if err != nil {
		e.logger.Debug("query failed", logging.DBType(cfg.DBType), zap.Error(err))
		return err
	}
	e.logger.Debug("query succeeded", logging.DBType(cfg.DBType), logging.Elapsed(time.Since(start)))
	return nil
}

func (e *Executor) run(ctx context.Context, cfg QueryConfig, query string) error {
	switch strings.ToUpper(cfg.DBType) {
	case DBTypeMySQL:
		return e.execSQL(ctx, "mysql", cfg, query)
	case DBTypeSQLite:
		return e.execSQL(ctx, "sqlite", cfg, query)
	case DBTypeMongo:
		return e.execMongo(ctx, cfg, query)
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedDBType, cfg.DBType)
	}
}

func (e *Executor) execSQL(ctx context.Context, driver string, cfg QueryConfig, query string) error {
	h, err := e.sqlHandle(driver, cfg)
	if err != nil {
		return err
	}
	defer release(&e.mu, h, e.closeSQL)

	if _, err := h.conn.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("exec query: %w", err)
	}
	return nil
}

// sqlHandle returns a referenced handle; callers must release it.
func (e *Executor) sqlHandle(driver string, cfg QueryConfig) (*handle[*sql.DB], error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	key := cfg.key()
	if h, ok := e.sqlDBs.Get(key); ok {
		h.refs++
		return h, nil
	}
	d, err := sql.Open(driver, cfg.DBURL)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	h := &handle[*sql.DB]{key: key, conn: d, refs: 1}
	e.sqlDBs.Add(key, h)
	return h, nil
}

func (e *Executor) execMongo(ctx context.Context, cfg QueryConfig, query string) error {
	var cmd bson.D
	if err := bson.UnmarshalExtJSON([]byte(query), false, &cmd); err != nil {
		return fmt.Errorf("parse mongo command: %w", err)
	}

	h, err := e.mongoHandle(cfg)
	if err != nil {
		return err
	}
	defer release(&e.mu, h, e.closeMongo)

	if err := h.conn.Database(mongoDatabase(cfg.DBURL)).RunCommand(ctx, cmd).Err(); err != nil {
		return fmt.Errorf("run mongo command: %w", err)
	}
	return nil
}

// mongoHandle returns a referenced handle; callers must release it.
func (e *Executor) mongoHandle(cfg QueryConfig) (*handle[*mongo.Client], error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	key := cfg.key()
	if h, ok := e.mongos.Get(key); ok {
		h.refs++
		return h, nil
	}
	c, err := mongo.Connect(options.Client().ApplyURI(cfg.DBURL))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	h := &handle[*mongo.Client]{key: key, conn: c, refs: 1}
	e.mongos.Add(key, h)
	return h, nil
}

// mongoDatabase returns the database named in the URI path, or "test".
func mongoDatabase(uri string) string {
	u, err := url.Parse(uri)
	if err != nil {
		return "test"
	}
	if name := strings.Trim(u.Path, "/"); name != "" {
		return name
	}
	return "test"
}

// Close closes every cached handle not in use; handles still in use close
// when their query finishes.
func (e *Executor) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sqlDBs.Purge()
	e.mongos.Purge()
	return nil
}

// redact strips credentials from a cache key before it is logged.
func redact(key string) string {
	kind, raw, _ := strings.Cut(key, "|")
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return kind
	}
	return kind + "|" + u.Redacted()
}
