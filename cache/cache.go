// Package cache persists compiled chunks in SQLite, keyed by the SHA-256 of
// their source text.
package cache

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/chazu/loxvm/pkg/bytecode"
)

// ErrNotFound indicates no chunk is cached for the requested source.
var ErrNotFound = errors.New("chunk not cached")

// Cache is a content-addressed store of compiled chunks. It is safe for
// concurrent use.
type Cache struct {
	db     *sql.DB
	dbPath string
	mu     sync.Mutex // serializes writers
}

// Open opens or creates the cache database at dbPath. Use ":memory:" for a
// private in-memory cache.
func Open(dbPath string) (*Cache, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("creating cache directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// One connection: an in-memory database is per connection, and a
	// single writer avoids SQLITE_BUSY on files.
	db.SetMaxOpenConns(1)

	// Set busy timeout for concurrent access
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS chunks (
		key     TEXT PRIMARY KEY,
		version INTEGER NOT NULL,
		data    BLOB NOT NULL
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating table: %w", err)
	}

	log.Debugf("opened chunk cache %s", dbPath)
	return &Cache{db: db, dbPath: dbPath}, nil
}

// Close closes the database connection.
func (c *Cache) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// Path returns the database path the cache was opened with.
func (c *Cache) Path() string {
	return c.dbPath
}

// Key returns the cache key for source: the hex SHA-256 of its bytes.
func Key(source string) string {
	sum := sha256.Sum256([]byte(source))
	return hex.EncodeToString(sum[:])
}

// Get returns the cached chunk for source. Entries written by another
// format version are treated as missing.
func (c *Cache) Get(ctx context.Context, source string) (*bytecode.Chunk, error) {
	var version int
	var data []byte
	err := c.db.QueryRowContext(ctx,
		"SELECT version, data FROM chunks WHERE key = ?", Key(source),
	).Scan(&version, &data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("querying chunk: %w", err)
	}
	if version != int(bytecode.FormatVersion) {
		return nil, ErrNotFound
	}

	chunk, err := bytecode.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("decoding cached chunk: %w", err)
	}
	return chunk, nil
}

// Put stores chunk as the compiled form of source, replacing any previous
// entry.
func (c *Cache) Put(ctx context.Context, source string, chunk *bytecode.Chunk) error {
	data, err := bytecode.Marshal(chunk)
	if err != nil {
		return fmt.Errorf("encoding chunk: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	_, err = c.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO chunks (key, version, data) VALUES (?, ?, ?)",
		Key(source), bytecode.FormatVersion, data,
	)
	if err != nil {
		return fmt.Errorf("saving chunk: %w", err)
	}
	return nil
}

// GetOrCompile returns the cached chunk for source, or compiles it with
// compile and caches the result. hit reports whether the cache served it.
// Compile errors are returned unchanged and nothing is cached.
func (c *Cache) GetOrCompile(ctx context.Context, source string, compile func(string) (*bytecode.Chunk, error)) (chunk *bytecode.Chunk, hit bool, err error) {
	chunk, err = c.Get(ctx, source)
	switch {
	case err == nil:
		return chunk, true, nil
	case !errors.Is(err, ErrNotFound):
		// A corrupt entry is overwritten below.
		log.Warningf("ignoring unreadable cache entry: %s", err)
	}

	chunk, err = compile(source)
	if err != nil {
		return nil, false, err
	}
	if err := c.Put(ctx, source, chunk); err != nil {
		log.Errorf("caching chunk: %s", err)
	}
	return chunk, false, nil
}

// Len returns the number of cached chunks.
func (c *Cache) Len(ctx context.Context) (int, error) {
	var n int
	if err := c.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM chunks").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting chunks: %w", err)
	}
	return n, nil
}

// Clear removes every cached chunk.
func (c *Cache) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := c.db.ExecContext(ctx, "DELETE FROM chunks"); err != nil {
		return fmt.Errorf("clearing cache: %w", err)
	}
	return nil
}
