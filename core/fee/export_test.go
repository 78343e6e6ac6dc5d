package fee

import "time"

// MockTransactionRef replaces the transaction reference generator until the returned func is called.
func MockTransactionRef(f func(now time.Time) string) (restore func()) {
	orig := newTransactionRef
	newTransactionRef = f
	return func() { newTransactionRef = orig }
}
