package storage

import "time"

// SetClock reemplaza el reloj del store (tests de expiración).
func SetClock(s *SQLiteKV, now func() time.Time) {
	s.now = now
}
