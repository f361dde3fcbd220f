// Package executor orchestrates a single HTTP/1.x request: connect, write,
// deadline-bounded head/body receive, and redirect following.
package executor

import (
	"bufio"
	"context"
	"crypto/tls"
	"io"
	"os"
	"time"

	"github.com/devkeep/httpwire/pkg/auth"
	"github.com/devkeep/httpwire/pkg/headers"
	"github.com/devkeep/httpwire/pkg/httperr"
	"github.com/devkeep/httpwire/pkg/message"
	"github.com/devkeep/httpwire/pkg/redirect"
	"github.com/devkeep/httpwire/pkg/relay"
	"github.com/devkeep/httpwire/pkg/timing"
	"github.com/devkeep/httpwire/pkg/transport"
	"github.com/devkeep/httpwire/pkg/uri"
)

const (
	defaultConnectTimeout = 60 * time.Second
	defaultReadTimeout    = 60 * time.Second
	defaultWriteTimeout   = 60 * time.Second
	defaultTimeout        = time.Hour
)

// Options configures one logical request (possibly followed by redirects).
type Options struct {
	Method message.Method
	Header *headers.Map // extra headers merged on top of the defaults
	Body   []byte

	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	Timeout        time.Duration // whole-request deadline, across all redirects

	RootCertFilePEM string   // optional PEM file appended to the trust store
	CustomCACerts   [][]byte // additional PEM-encoded CA certs appended to the trust store
	RedirectPolicy  redirect.Policy
	Auth            auth.Credential

	// BodyMemLimit bounds how much of the response body SendBuffered keeps
	// in memory before spilling the rest to a temp file. Zero uses
	// buffer.DefaultMemoryLimit. Unused by Send, which always drains into
	// the caller's own io.Writer.
	BodyMemLimit int64

	Proxy       *transport.ProxyConfig
	InsecureTLS bool
	TLSConfig   *tls.Config
	SNI         string
	DisableSNI  bool

	// Client certificate for mutual TLS, given either as PEM bytes or as
	// file paths. The PEM fields win if both are set.
	ClientCertPEM  []byte
	ClientKeyPEM   []byte
	ClientCertFile string
	ClientKeyFile  string
}

func (o Options) withDefaults() Options {
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = defaultConnectTimeout
	}
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = defaultReadTimeout
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = defaultWriteTimeout
	}
	if o.Timeout <= 0 {
		o.Timeout = defaultTimeout
	}
	if o.Method == "" {
		o.Method = message.GET
	}
	if o.RedirectPolicy == nil {
		o.RedirectPolicy = redirect.NewLimit(redirect.DefaultLimit)
	}
	return o
}

// Executor sends one request, following redirects per its policy.
type Executor struct {
	opts      Options
	transport *transport.Transport
}

// New builds an Executor, applying documented defaults to any zero-valued
// option.
func New(opts Options) *Executor {
	return &Executor{opts: opts.withDefaults(), transport: transport.New()}
}

// Send performs one request: connect,
// optionally upgrade to TLS, write the request, receive the head under the
// whole-request deadline, follow redirects, and drain the body into w.
func (e *Executor) Send(target *uri.URI, w io.Writer) (*message.Response, error) {
	return e.send(target, w, 1, time.Now().Add(e.opts.Timeout))
}

func (e *Executor) send(target *uri.URI, w io.Writer, attempt int, deadline time.Time) (*message.Response, error) {
	req := message.NewRequest(target)
	req.Method = e.opts.Method
	if e.opts.Header != nil {
		e.opts.Header.Range(func(name, value string) bool {
			req.Headers.Set(name, value)
			return true
		})
	}
	if e.opts.Auth != nil {
		req.Headers.SetRaw("Authorization", e.opts.Auth.HeaderValue())
	}
	if len(e.opts.Body) > 0 {
		req.SetBody(e.opts.Body)
	}

	timer := timing.NewTimer()

	caCerts := append([][]byte{}, e.opts.CustomCACerts...)
	if e.opts.RootCertFilePEM != "" {
		pem, err := os.ReadFile(e.opts.RootCertFilePEM)
		if err != nil {
			return nil, httperr.NewTLSError(target.Host(), int(target.Port()), err)
		}
		caCerts = append(caCerts, pem)
	}

	cfg := transport.Config{
		Scheme:         target.Scheme(),
		Host:           target.Host(),
		Port:           int(target.Port()),
		SNI:            e.opts.SNI,
		DisableSNI:     e.opts.DisableSNI,
		InsecureTLS:    e.opts.InsecureTLS,
		ConnTimeout:    e.opts.ConnectTimeout,
		Proxy:          e.opts.Proxy,
		CustomCACerts:  caCerts,
		TLSConfig:      e.opts.TLSConfig,
		ClientCertPEM:  e.opts.ClientCertPEM,
		ClientKeyPEM:   e.opts.ClientKeyPEM,
		ClientCertFile: e.opts.ClientCertFile,
		ClientKeyFile:  e.opts.ClientKeyFile,
	}

	conn, _, err := e.transport.Connect(context.Background(), cfg, timer)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(e.opts.ReadTimeout))
	conn.SetWriteDeadline(time.Now().Add(e.opts.WriteTimeout))
	if _, err := conn.Write(req.Bytes()); err != nil {
		return nil, httperr.NewIOError("executor: write request", err)
	}

	timer.StartTTFB()
	rl := relay.Start(bufio.NewReader(conn))

	head, err := rl.ReceiveHead(deadline)
	timer.EndTTFB()
	if err != nil {
		return nil, err
	}

	resp, err := message.ParseHead(head)
	if err != nil {
		return nil, err
	}
	resp.Metrics = timer.GetMetrics()

	if resp.StatusLine.Code.IsRedirect() {
		if loc, ok := resp.Headers.Get("Location"); ok {
			nextTarget, resolveErr := uri.Resolve(target, loc)
			if resolveErr == nil && e.opts.RedirectPolicy.Allow(attempt, target, nextTarget, int(resp.StatusLine.Code)) {
				rl.SendControl(relay.Control{Mode: relay.BodyNone})
				conn.Close()
				return e.send(nextTarget, w, attempt+1, deadline)
			}
		}
	}

	mode, length := bodyPlan(e.opts.Method, resp)
	rl.SendControl(relay.Control{Mode: mode, Length: length})
	if err := rl.ReceiveBody(w, deadline); err != nil {
		return nil, err
	}

	return resp, nil
}

// bodyPlan decides how the producer should delimit the body: HEAD
// responses never carry one; chunked encoding wins over Content-Length;
// an absent Content-Length still drains a (possibly empty) body until the
// connection closes, since the length is unknown rather than zero.
func bodyPlan(method message.Method, resp *message.Response) (relay.BodyMode, int64) {
	if method == message.HEAD {
		return relay.BodyNone, 0
	}
	if resp.IsChunked() {
		return relay.BodyChunked, 0
	}
	if cl, ok := resp.ContentLength(); ok {
		if cl <= 0 {
			return relay.BodyNone, 0
		}
		return relay.BodyContentLength, cl
	}
	return relay.BodyUntilClose, 0
}
