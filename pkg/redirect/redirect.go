// Package redirect implements the request executor's redirect policy: a
// bounded numeric limit, or a caller-supplied predicate.
package redirect

import "github.com/devkeep/httpwire/pkg/uri"

// DefaultLimit is how many redirects are followed when no policy is given.
const DefaultLimit = 5

// Policy decides whether to follow another redirect. attempt is the
// 1-based number of the redirect being decided for the current request
// (1 on the first hop, one more than the redirects already followed);
// from is the URI that produced the redirect
// response, to is where it points, statusCode is the response's status.
type Policy interface {
	Allow(attempt int, from *uri.URI, to *uri.URI, statusCode int) bool
}

// Limit follows up to Max redirects, then stops. Stateless and safe to
// reuse across requests.
type Limit struct {
	Max int
}

// NewLimit returns a Limit policy allowing at most n redirects.
func NewLimit(n int) Limit { return Limit{Max: n} }

func (l Limit) Allow(attempt int, _ *uri.URI, _ *uri.URI, _ int) bool {
	return attempt <= l.Max
}

// Custom defers the decision to a caller-supplied predicate — the only
// place in this module dynamic dispatch is used per request.
type Custom struct {
	Predicate func(attempt int, from *uri.URI, to *uri.URI, statusCode int) bool
}

// NewCustom wraps a predicate function as a Policy.
func NewCustom(fn func(attempt int, from, to *uri.URI, statusCode int) bool) Custom {
	return Custom{Predicate: fn}
}

func (c Custom) Allow(attempt int, from, to *uri.URI, statusCode int) bool {
	if c.Predicate == nil {
		return false
	}
	return c.Predicate(attempt, from, to, statusCode)
}
