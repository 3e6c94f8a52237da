// Package middleware provides the HTTP middleware applied to API modules
// and the Chain that orders them.
package middleware

import "net/http"

// Middleware wraps a handler.
type Middleware func(http.Handler) http.Handler

// Chain applies middleware in the order added: the first added is outermost.
type Chain struct {
	stack []Middleware
}

// Use appends mw to the chain.
func (c *Chain) Use(mw Middleware) {
	c.stack = append(c.stack, mw)
}

// Then wraps h with every middleware in the chain.
func (c *Chain) Then(h http.Handler) http.Handler {
	for i := len(c.stack) - 1; i >= 0; i-- {
		h = c.stack[i](h)
	}
	return h
}
