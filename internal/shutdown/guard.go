package shutdown

import (
	"runtime/debug"

	apperrors "github.com/apistarter/apistarter/internal/errors"
)

// Guard wraps fn so a panic escaping it is reported through Fatal rather than
// crashing the process outside the drain path.
func (c *Coordinator) Guard(name string, fn func()) func() {
	return func() {
		defer func() {
			if r := recover(); r != nil {
				c.Fatal(name, &apperrors.PanicError{Source: name, Value: r, Stack: debug.Stack()})
			}
		}()
		fn()
	}
}

// Go runs fn on a new guarded goroutine. A returned error is also fatal.
func (c *Coordinator) Go(name string, fn func() error) {
	go c.Guard(name, func() {
		if err := fn(); err != nil {
			c.Fatal(name, err)
		}
	})()
}
