package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const defaultRedisTimeout = 2 * time.Second

// RedisKV implementa ports.KVStore sobre Redis. Es el backend compartido cuando
// varios procesos (scanner + settlement) escriben las mismas claves.
type RedisKV struct {
	client  *redis.Client
	prefix  string
	timeout time.Duration
}

// NewRedisKV conecta con Redis y verifica la conexión con PING.
func NewRedisKV(ctx context.Context, addr, password string, db int, prefix string) (*RedisKV, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("storage.NewRedisKV: ping %q: %w", addr, err)
	}
	return NewRedisKVFromClient(client, prefix), nil
}

// NewRedisKVFromClient envuelve un cliente ya creado (tests con redismock).
func NewRedisKVFromClient(client *redis.Client, prefix string) *RedisKV {
	return &RedisKV{client: client, prefix: prefix, timeout: defaultRedisTimeout}
}

// Get devuelve el valor de la clave. redis.Nil se traduce a found=false.
func (r *RedisKV) Get(ctx context.Context, key string) ([]byte, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	v, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("storage.RedisKV.Get: %q: %w", key, err)
	}
	return v, true, nil
}

// Set guarda el valor con SET EX. ttl <= 0 guarda sin expiración.
func (r *RedisKV) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if ttl < 0 {
		ttl = 0 // en go-redis un TTL negativo es KEEPTTL
	}
	if err := r.client.Set(ctx, r.prefix+key, value, ttl).Err(); err != nil {
		return fmt.Errorf("storage.RedisKV.Set: %q: %w", key, err)
	}
	return nil
}

// Delete borra la clave.
func (r *RedisKV) Delete(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if err := r.client.Del(ctx, r.prefix+key).Err(); err != nil {
		return fmt.Errorf("storage.RedisKV.Delete: %q: %w", key, err)
	}
	return nil
}

// Close cierra el cliente.
func (r *RedisKV) Close() error {
	return r.client.Close()
}
