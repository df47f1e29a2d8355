package wallets

import "time"

// SetClock reemplaza el reloj del ledger en tests.
func SetClock(l *Ledger, now func() time.Time) {
	l.now = now
}
