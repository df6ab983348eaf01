// Package lock serializes work on a single key, typically one user's cart.
package lock

import (
	"context"
	"errors"
)

var ErrLockTimeout = errors.New("lock wait timed out")

// Locker hands out exclusive access to a key until release is called.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// CartKey is the lock key guarding one user's cart.
func CartKey(userID string) string {
	return "lock:cart:" + userID
}

// OrderKey is the lock key guarding status changes of one order.
func OrderKey(orderID string) string {
	return "lock:order:" + orderID
}
