package ports

import (
	"context"
	"time"
)

// KVStore es el almacén clave-valor compartido donde viven señales, wallets y
// estadísticas. Solo ofrece get-then-put: no hay compare-and-swap, así que dos
// escritores concurrentes sobre la misma clave se resuelven con last-write-wins.
type KVStore interface {
	// Get devuelve el valor de la clave. found=false si no existe o expiró.
	Get(ctx context.Context, key string) (value []byte, found bool, err error)

	// Set guarda el valor. ttl <= 0 significa sin expiración.
	// El TTL es higiene de almacenamiento: la corrección nunca depende de él.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete elimina la clave. Borrar una clave inexistente no es error.
	Delete(ctx context.Context, key string) error

	// Close libera la conexión.
	Close() error
}
