// Package kv contiene los helpers de serialización sobre ports.KVStore.
// Todos los registros se guardan como JSON plano.
package kv

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/alejandrodnm/polysignal/internal/ports"
)

// GetJSON lee la clave y la decodifica en T. found=false si no existe.
func GetJSON[T any](ctx context.Context, s ports.KVStore, key string) (T, bool, error) {
	var out T
	raw, found, err := s.Get(ctx, key)
	if err != nil {
		return out, false, fmt.Errorf("kv.GetJSON: get %q: %w", key, err)
	}
	if !found {
		return out, false, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, false, fmt.Errorf("kv.GetJSON: decode %q: %w", key, err)
	}
	return out, true, nil
}

// PutJSON serializa v y lo guarda con el TTL dado (<= 0 sin expiración).
func PutJSON(ctx context.Context, s ports.KVStore, key string, v any, ttl time.Duration) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("kv.PutJSON: encode %q: %w", key, err)
	}
	if err := s.Set(ctx, key, raw, ttl); err != nil {
		return fmt.Errorf("kv.PutJSON: set %q: %w", key, err)
	}
	return nil
}

// AddToIndex añade id a la lista guardada en key si no estaba. Devuelve true si la modificó.
func AddToIndex(ctx context.Context, s ports.KVStore, key, id string) (bool, error) {
	ids, _, err := GetJSON[[]string](ctx, s, key)
	if err != nil {
		return false, err
	}
	for _, existing := range ids {
		if existing == id {
			return false, nil
		}
	}
	ids = append(ids, id)
	return true, PutJSON(ctx, s, key, ids, 0)
}

// RemoveFromIndex quita id de la lista guardada en key. Devuelve true si estaba.
func RemoveFromIndex(ctx context.Context, s ports.KVStore, key, id string) (bool, error) {
	ids, found, err := GetJSON[[]string](ctx, s, key)
	if err != nil || !found {
		return false, err
	}
	out := ids[:0]
	removed := false
	for _, existing := range ids {
		if existing == id {
			removed = true
			continue
		}
		out = append(out, existing)
	}
	if !removed {
		return false, nil
	}
	return true, PutJSON(ctx, s, key, out, 0)
}
