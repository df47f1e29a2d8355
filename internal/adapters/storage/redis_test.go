package storage_test

import (
	"context"
	"testing"
	"time"

	"github.com/alejandrodnm/polysignal/internal/adapters/storage"
	"github.com/go-redis/redis/v8"
	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisKV_Get(t *testing.T) {
	client, mock := redismock.NewClientMock()
	store := storage.NewRedisKVFromClient(client, "ps:")
	ctx := context.Background()

	t.Run("hit", func(t *testing.T) {
		mock.ExpectGet("ps:signal:1").SetVal(`{"id":"1"}`)

		v, found, err := store.Get(ctx, "signal:1")
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, `{"id":"1"}`, string(v))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("miss", func(t *testing.T) {
		mock.ExpectGet("ps:signal:2").RedisNil()

		v, found, err := store.Get(ctx, "signal:2")
		require.NoError(t, err)
		assert.False(t, found)
		assert.Nil(t, v)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("error", func(t *testing.T) {
		mock.ExpectGet("ps:signal:3").SetErr(redis.TxFailedErr)

		_, _, err := store.Get(ctx, "signal:3")
		require.Error(t, err)
		assert.ErrorIs(t, err, redis.TxFailedErr)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestRedisKV_SetWithTTL(t *testing.T) {
	client, mock := redismock.NewClientMock()
	store := storage.NewRedisKVFromClient(client, "")

	value := []byte(`{"wins":3}`)
	mock.ExpectSet("wallet:0xabc", value, 5*time.Minute).SetVal("OK")

	require.NoError(t, store.Set(context.Background(), "wallet:0xabc", value, 5*time.Minute))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisKV_SetWithoutTTL(t *testing.T) {
	client, mock := redismock.NewClientMock()
	store := storage.NewRedisKVFromClient(client, "")

	value := []byte(`["a","b"]`)
	mock.ExpectSet("signals:pending", value, 0).SetVal("OK")

	// Un TTL negativo se normaliza a "sin expiración"
	require.NoError(t, store.Set(context.Background(), "signals:pending", value, -1))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisKV_Delete(t *testing.T) {
	client, mock := redismock.NewClientMock()
	store := storage.NewRedisKVFromClient(client, "ps:")

	mock.ExpectDel("ps:wallet:0xabc").SetVal(1)

	require.NoError(t, store.Delete(context.Background(), "wallet:0xabc"))
	require.NoError(t, mock.ExpectationsWereMet())
}
