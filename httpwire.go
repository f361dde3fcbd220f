// Package httpwire is a synchronous HTTP/1.x client: parse a URI, build a
// request, send it over plain TCP or TLS, and drain the response body into
// a caller-supplied writer under a single wall-clock deadline.
package httpwire

import (
	"io"

	"github.com/devkeep/httpwire/pkg/auth"
	"github.com/devkeep/httpwire/pkg/buffer"
	"github.com/devkeep/httpwire/pkg/executor"
	"github.com/devkeep/httpwire/pkg/message"
	"github.com/devkeep/httpwire/pkg/redirect"
	"github.com/devkeep/httpwire/pkg/transport"
	"github.com/devkeep/httpwire/pkg/uri"
)

// Re-exported types so callers rarely need to import the subpackages
// directly for common usage.
type (
	Method      = message.Method
	Response    = message.Response
	Options     = executor.Options
	Policy      = redirect.Policy
	Credential  = auth.Credential
	ProxyConfig = transport.ProxyConfig
	URI         = uri.URI
)

const (
	GET     = message.GET
	HEAD    = message.HEAD
	POST    = message.POST
	PUT     = message.PUT
	DELETE  = message.DELETE
	CONNECT = message.CONNECT
	OPTIONS = message.OPTIONS
	TRACE   = message.TRACE
	PATCH   = message.PATCH
)

// NewLimit builds a numeric redirect policy.
func NewLimit(n int) redirect.Limit { return redirect.NewLimit(n) }

// NewCustom builds a predicate-driven redirect policy.
func NewCustom(fn func(attempt int, from, to *uri.URI, statusCode int) bool) redirect.Custom {
	return redirect.NewCustom(fn)
}

// ParseProxyURL parses "scheme://[user[:pass]@]host[:port]" into a
// ProxyConfig. An omitted port is left as 0; the scheme's default port is
// applied when the connection is made.
func ParseProxyURL(raw string) (*ProxyConfig, error) {
	return transport.ParseProxyURL(raw)
}

// Send parses target and performs opts.Method (or GET, its default)
// against it, draining the response body into w.
func Send(target string, opts Options, w io.Writer) (*Response, error) {
	u, err := uri.Parse(target)
	if err != nil {
		return nil, err
	}
	return executor.New(opts).Send(u, w)
}

// Get issues a GET request.
func Get(target string, w io.Writer) (*Response, error) {
	return Send(target, Options{Method: message.GET}, w)
}

// Head issues a HEAD request. The response body is never populated.
func Head(target string) (*Response, error) {
	return Send(target, Options{Method: message.HEAD}, io.Discard)
}

// Post issues a POST request with the given body.
func Post(target string, body []byte, w io.Writer) (*Response, error) {
	return Send(target, Options{Method: message.POST, Body: body}, w)
}

// SendBuffered is Send with the response body captured in a *buffer.Buffer
// instead of a caller-supplied io.Writer: kept in memory up to
// opts.BodyMemLimit (buffer.DefaultMemoryLimit if zero), then spilled to a
// temp file beyond that. On success the caller owns the returned buffer
// and must Close it; on error the buffer is closed here and b is nil.
func SendBuffered(target string, opts Options) (resp *Response, b *buffer.Buffer, err error) {
	b = buffer.New(opts.BodyMemLimit)
	resp, err = Send(target, opts, b)
	if err != nil {
		b.Close()
		return nil, nil, err
	}
	return resp, b, nil
}
