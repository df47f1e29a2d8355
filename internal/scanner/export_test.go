package scanner

import "time"

// SetClock reemplaza el reloj del scanner en tests.
func SetClock(s *Scanner, now func() time.Time) {
	s.now = now
}
