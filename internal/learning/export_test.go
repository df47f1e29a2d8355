package learning

import "time"

// SetClock reemplaza el reloj del store en tests.
func SetClock(s *Store, now func() time.Time) {
	s.now = now
}
