// Package relay implements the deadline-driven producer/consumer channel
// I/O used to read a response: a background goroutine reads the head and
// then waits for the caller to decide how the body is delimited, so the
// whole-request deadline can be enforced independently of the connection's
// own read/write timeouts.
package relay

import (
	"bufio"
	"io"
	"time"

	"github.com/devkeep/httpwire/pkg/chunked"
	"github.com/devkeep/httpwire/pkg/headers"
	"github.com/devkeep/httpwire/pkg/httperr"
	"github.com/devkeep/httpwire/pkg/message"
)

const readChunkSize = 16 * 1024

// BodyMode tells the producer how to delimit the response body once the
// head has been parsed.
type BodyMode int

const (
	// BodyNone means there is no body to read (e.g. a HEAD response).
	BodyNone BodyMode = iota
	// BodyContentLength reads exactly Length bytes.
	BodyContentLength
	// BodyChunked decodes Transfer-Encoding: chunked.
	BodyChunked
	// BodyUntilClose reads until the connection closes.
	BodyUntilClose
)

// Control is sent by the consumer once it has parsed the head and decided
// how the body is delimited.
type Control struct {
	Mode   BodyMode
	Length int64
}

type headResult struct {
	head []byte
	err  error
}

type bodyChunk struct {
	data []byte
	err  error // io.EOF marks a clean end; any other error aborts the relay
}

// Relay owns the background goroutine draining a connection's response.
type Relay struct {
	headCh    chan headResult
	controlCh chan Control
	bodyCh    chan bodyChunk

	chunks *chunked.Reader // set before any body chunk is sent, for Trailer
}

// Start reads from r in a background goroutine: it reads the head
// immediately and blocks until SendControl is called before draining the
// body, if any.
func Start(r *bufio.Reader) *Relay {
	rl := &Relay{
		headCh:    make(chan headResult, 1),
		controlCh: make(chan Control, 1),
		bodyCh:    make(chan bodyChunk, 4),
	}
	go rl.run(r)
	return rl
}

func (rl *Relay) run(r *bufio.Reader) {
	head, err := message.ReadHead(r)
	rl.headCh <- headResult{head: head, err: err}
	if err != nil {
		close(rl.bodyCh)
		return
	}

	ctrl := <-rl.controlCh

	switch ctrl.Mode {
	case BodyNone:
		close(rl.bodyCh)
	case BodyContentLength:
		rl.streamAll(io.LimitReader(r, ctrl.Length))
	case BodyUntilClose:
		rl.streamAll(r)
	case BodyChunked:
		rl.chunks = chunked.NewReader(r)
		rl.streamAll(rl.chunks)
	}
}

func (rl *Relay) streamAll(r io.Reader) {
	defer close(rl.bodyCh)
	buf := make([]byte, readChunkSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			rl.bodyCh <- bodyChunk{data: chunk}
		}
		if err != nil {
			if err == io.EOF {
				rl.bodyCh <- bodyChunk{err: io.EOF}
			} else {
				rl.bodyCh <- bodyChunk{err: httperr.NewIOError("relay: read body", err)}
			}
			return
		}
	}
}

// ReceiveHead waits for the head bytes or the deadline, whichever comes
// first.
func (rl *Relay) ReceiveHead(deadline time.Time) ([]byte, error) {
	remaining := time.Until(deadline)
	if remaining <= 0 {
		return nil, httperr.NewTimeoutError("relay: receive head", 0)
	}
	select {
	case res := <-rl.headCh:
		return res.head, res.err
	case <-time.After(remaining):
		return nil, httperr.NewTimeoutError("relay: receive head", remaining)
	}
}

// SendControl tells the producer how to delimit and drain the body. Must
// be called exactly once after ReceiveHead succeeds.
func (rl *Relay) SendControl(c Control) {
	rl.controlCh <- c
}

// ReceiveBody drains body chunks into w until the producer signals a
// clean end, an error occurs, or the deadline is exceeded. It rechecks the
// deadline every iteration, so it enforces the deadline independently of
// how many chunks the body is split into.
func (rl *Relay) ReceiveBody(w io.Writer, deadline time.Time) error {
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return httperr.NewTimeoutError("relay: receive body", 0)
		}

		select {
		case chunk, ok := <-rl.bodyCh:
			if !ok {
				return nil
			}
			if len(chunk.data) > 0 {
				if _, err := w.Write(chunk.data); err != nil {
					return httperr.NewIOError("relay: write body", err)
				}
			}
			if chunk.err != nil {
				if chunk.err == io.EOF {
					return nil
				}
				return chunk.err
			}
		case <-time.After(remaining):
			return httperr.NewTimeoutError("relay: receive body", remaining)
		}
	}
}

// Trailer returns the trailer headers captured by a chunked body, if any.
// Only meaningful after ReceiveBody has returned for a BodyChunked
// control.
func (rl *Relay) Trailer() *headers.Map {
	if rl.chunks == nil {
		return nil
	}
	return rl.chunks.Trailer
}
