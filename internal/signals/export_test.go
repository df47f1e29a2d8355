package signals

import "time"

// SetClock reemplaza el reloj del manager en tests.
func SetClock(m *Manager, now func() time.Time) {
	m.now = now
}
