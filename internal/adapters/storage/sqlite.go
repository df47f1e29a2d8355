package storage

// sqlite.go: almacén clave-valor local sobre SQLite (pure Go, sin CGo).
//
// Estrategia:
//   - Una sola tabla `kv` con el valor serializado (JSON) y un expires_at en unix
//     segundos (0 = sin expiración). Las lecturas ignoran filas expiradas.
//   - Cache en memoria del hash del último valor escrito por clave: los índices
//     (pending, tracked) se reescriben a menudo con el mismo contenido. Si el
//     hash coincide se compara con la fila guardada (una lectura, sin fsync) y
//     solo se omite la escritura si es idéntica, así otro proceso sobre el
//     mismo fichero no deja la cache desfasada.
//   - Prune automático al arrancar: filas expiradas se borran.

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

const kvSchema = `
CREATE TABLE IF NOT EXISTS kv (
    key        TEXT PRIMARY KEY,
    value      BLOB    NOT NULL,
    expires_at INTEGER NOT NULL DEFAULT 0,
    updated_at INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_kv_expires ON kv(expires_at);
`

// SQLiteKV implementa ports.KVStore usando SQLite.
type SQLiteKV struct {
	db    *sql.DB
	cache map[string]uint64 // key → hash del último valor escrito sin TTL
	mu    sync.Mutex
	now   func() time.Time
}

// NewSQLiteKV abre (o crea) la base de datos en la ruta dada, aplica el schema
// y limpia las filas expiradas.
func NewSQLiteKV(path string) (*SQLiteKV, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteKV: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite es single-writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(kvSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteKV: apply schema: %w", err)
	}

	s := &SQLiteKV{
		db:    db,
		cache: make(map[string]uint64),
		now:   time.Now,
	}
	s.pruneExpired(context.Background())
	return s, nil
}

// Get devuelve el valor si existe y no expiró.
func (s *SQLiteKV) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM kv WHERE key = ? AND (expires_at = 0 OR expires_at > ?)`,
		key, s.now().Unix(),
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("storage.Get: %q: %w", key, err)
	}
	return value, true, nil
}

// Set hace upsert del valor. ttl <= 0 guarda sin expiración.
func (s *SQLiteKV) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	sum := hashValue(value)
	if ttl <= 0 && s.unchanged(key, sum) {
		stored, found, err := s.Get(ctx, key)
		if err == nil && found && bytes.Equal(stored, value) {
			return nil
		}
	}

	now := s.now()
	var expires int64
	if ttl > 0 {
		expires = now.Add(ttl).Unix()
	}

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO kv (key, value, expires_at, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value      = excluded.value,
			expires_at = excluded.expires_at,
			updated_at = excluded.updated_at
	`, key, value, expires, now.Unix()); err != nil {
		return fmt.Errorf("storage.Set: %q: %w", key, err)
	}

	s.mu.Lock()
	if ttl <= 0 {
		s.cache[key] = sum
	} else {
		delete(s.cache, key)
	}
	s.mu.Unlock()
	return nil
}

// Delete borra la clave.
func (s *SQLiteKV) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
		return fmt.Errorf("storage.Delete: %q: %w", key, err)
	}
	s.mu.Lock()
	delete(s.cache, key)
	s.mu.Unlock()
	return nil
}

// Close cierra la conexión a la base de datos.
func (s *SQLiteKV) Close() error {
	return s.db.Close()
}

// --- helpers internos ---

func (s *SQLiteKV) unchanged(key string, sum uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.cache[key]
	return ok && prev == sum
}

// pruneExpired elimina filas expiradas para mantener la DB ligera.
func (s *SQLiteKV) pruneExpired(ctx context.Context) {
	s.db.ExecContext(ctx, `DELETE FROM kv WHERE expires_at > 0 AND expires_at <= ?`, s.now().Unix())
}

func hashValue(b []byte) uint64 {
	h := fnv.New64a()
	h.Write(b)
	return h.Sum64()
}
