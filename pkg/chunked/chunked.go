// Package chunked implements the Transfer-Encoding: chunked wire format as
// an io.Reader adapter, the same state machine Go's own net/http/internal
// chunked reader uses (the Rust ancestor this was ported from says as much
// in its own doc comment).
package chunked

import (
	"bufio"
	"io"
	"strings"

	"github.com/devkeep/httpwire/pkg/headers"
	"github.com/devkeep/httpwire/pkg/httperr"
)

const maxLineLength = 4096

// Reader decodes a chunk-encoded body read from an underlying io.Reader.
type Reader struct {
	r        *bufio.Reader
	n        uint64 // bytes remaining in the current chunk
	checkEnd bool   // true once a chunk's data has been fully read, pending its trailing CRLF
	err      error  // sticky terminal error (io.EOF on a clean end)

	// Trailer accumulates any trailer headers that followed the final
	// zero-length chunk. Populated only once Read returns io.EOF.
	Trailer *headers.Map
}

// NewReader wraps r in a chunk decoder.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReader(r)}
}

func (cr *Reader) Read(b []byte) (n int, err error) {
	for cr.err == nil {
		if cr.checkEnd {
			if n > 0 && cr.r.Buffered() < 2 {
				// Don't block for the trailing CRLF if we already have
				// data to hand back.
				break
			}
			var footer [2]byte
			if _, cr.err = io.ReadFull(cr.r, footer[:]); cr.err == nil {
				if footer != [2]byte{'\r', '\n'} {
					cr.err = httperr.NewInvalidError("chunked: malformed chunk terminator")
				}
			}
			cr.checkEnd = false
			continue
		}

		if cr.n == 0 {
			if n > 0 && !cr.chunkHeaderAvailable() {
				break
			}
			cr.beginChunk()
			continue
		}

		if len(b) == 0 {
			break
		}

		take := cr.n
		if uint64(len(b)) < take {
			take = uint64(len(b))
		}

		var n0 int
		n0, cr.err = cr.r.Read(b[:take])
		n += n0
		b = b[n0:]
		cr.n -= uint64(n0)

		if cr.n == 0 && cr.err == nil {
			cr.checkEnd = true
		} else if cr.err == io.EOF {
			cr.err = io.ErrUnexpectedEOF
		}
	}

	if cr.err != nil && cr.err != io.EOF {
		return n, cr.err
	}
	if n > 0 {
		return n, nil
	}
	return n, cr.err
}

// chunkHeaderAvailable reports whether a full chunk-size line is already
// buffered, so beginChunk won't block waiting for more bytes mid-Read.
func (cr *Reader) chunkHeaderAvailable() bool {
	peeked, _ := cr.r.Peek(cr.r.Buffered())
	return strings.IndexByte(string(peeked), '\n') >= 0
}

// beginChunk reads and parses the next chunk-size line, and if it denotes
// the terminal zero-length chunk, drains any trailer headers and marks the
// reader done.
func (cr *Reader) beginChunk() {
	line, err := readChunkLine(cr.r)
	if err != nil {
		cr.err = err
		return
	}

	size, err := parseHexUint(line)
	if err != nil {
		cr.err = err
		return
	}
	cr.n = size

	if cr.n == 0 {
		if err := cr.readTrailer(); err != nil {
			cr.err = err
			return
		}
		cr.err = io.EOF
	}
}

func (cr *Reader) readTrailer() error {
	for {
		line, err := cr.r.ReadString('\n')
		if err != nil {
			if err == io.EOF && line == "" {
				// Stream ended right after the terminal chunk-size line, with
				// no trailer block at all. That's a clean end, not a missing
				// terminator: only a trailer line begun and then cut off
				// mid-line is a real truncation.
				return nil
			}
			return httperr.NewIOError("chunked: read trailer", err)
		}
		trimmed := strings.TrimRight(line, "\r\n")
		if trimmed == "" {
			return nil
		}
		name, value, ok := strings.Cut(trimmed, ":")
		if !ok {
			return httperr.NewHeadersError("chunked: malformed trailer line")
		}
		if cr.Trailer == nil {
			cr.Trailer = headers.New()
		}
		cr.Trailer.Set(strings.TrimSpace(name), strings.TrimSpace(value))
	}
}

// readChunkLine reads one CRLF- or LF-terminated line holding a chunk size
// (with an optional ";ext" suffix), trims trailing whitespace and the
// extension, and enforces the maximum line length.
func readChunkLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil && line == "" {
		return "", httperr.NewIOError("chunked: read chunk size", err)
	}
	if len(line) > maxLineLength {
		return "", httperr.NewInvalidError("chunked: chunk-size line too long")
	}

	if i := strings.IndexByte(line, ';'); i >= 0 {
		line = line[:i]
	}
	line = strings.TrimRightFunc(line, isASCIISpace)

	return line, nil
}

func isASCIISpace(r rune) bool {
	switch r {
	case ' ', '\t', '\n', '\r':
		return true
	}
	return false
}

// parseHexUint parses a bare hexadecimal chunk size, capped at 16 digits
// (64 bits) the same as the reference implementation.
func parseHexUint(s string) (uint64, error) {
	if len(s) == 0 {
		return 0, httperr.NewEmptyError("chunked: empty chunk-size line")
	}
	if len(s) > 16 {
		return 0, httperr.NewInvalidError("chunked: chunk size too large")
	}

	var n uint64
	for _, c := range []byte(s) {
		var v byte
		switch {
		case c >= '0' && c <= '9':
			v = c - '0'
		case c >= 'a' && c <= 'f':
			v = c - 'a' + 10
		case c >= 'A' && c <= 'F':
			v = c - 'A' + 10
		default:
			return 0, httperr.NewIntError("chunked: invalid hex digit in chunk size", nil)
		}
		n = n<<4 | uint64(v)
	}
	return n, nil
}
