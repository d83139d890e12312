package sequence

import (
	"context"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"
)

// MemoryStore keeps counters in process memory.
type MemoryStore struct {
	mu       sync.Mutex
	counters map[Scope]counter
}

type counter struct {
	year  int
	value int64
}

// NewMemoryStore constructs an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{counters: make(map[Scope]counter)}
}

// Increment implements Store.
func (s *MemoryStore) Increment(_ context.Context, scope Scope, year int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.counters[scope]
	if c.year != year {
		c = counter{year: year}
	}
	c.value++
	s.counters[scope] = c
	return c.value, nil
}

// Querier is satisfied by *pgxpool.Pool and pgx.Tx.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PGStore increments counters in document_sequences. Bind it to the
// transaction that inserts the document.
type PGStore struct {
	q Querier
}

// NewPGStore binds the store to a pool or transaction.
func NewPGStore(q Querier) *PGStore {
	return &PGStore{q: q}
}

const incrementSQL = `INSERT INTO document_sequences (scope, year, value)
VALUES ($1, $2, 1)
ON CONFLICT (scope) DO UPDATE SET
	value = CASE WHEN document_sequences.year = EXCLUDED.year THEN document_sequences.value + 1 ELSE 1 END,
	year = EXCLUDED.year
RETURNING value`

// Increment implements Store.
func (s *PGStore) Increment(ctx context.Context, scope Scope, year int) (int64, error) {
	var value int64
	if err := s.q.QueryRow(ctx, incrementSQL, string(scope), year).Scan(&value); err != nil {
		return 0, err
	}
	return value, nil
}

// RedisStore uses INCR on one key per scope and year, so a new year starts
// a fresh key at 1.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisStore constructs a Redis backed store.
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client, prefix: "odyssey:seq"}
}

// Key returns the redis key for scope and year.
func (s *RedisStore) Key(scope Scope, year int) string {
	return fmt.Sprintf("%s:%s:%d", s.prefix, scope, year)
}

// Increment implements Store.
func (s *RedisStore) Increment(ctx context.Context, scope Scope, year int) (int64, error) {
	return s.client.Incr(ctx, s.Key(scope, year)).Result()
}
