// internal/usecase/locks.go
package usecase

import "sync"

// orderLocks serializes callback processing per order id. The provider may
// deliver the same webhook twice concurrently; holding the order's lock
// across the guard check and the status write keeps the terminal-state
// guard sound without locking the whole store.
type orderLocks struct {
	locks sync.Map // int64 -> *sync.Mutex
}

func (l *orderLocks) lock(orderID int64) func() {
	v, _ := l.locks.LoadOrStore(orderID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}
