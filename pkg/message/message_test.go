package message

import (
	"bufio"
	"strings"
	"testing"

	"github.com/devkeep/httpwire/pkg/uri"
)

func TestRequestBytesRoundTrip(t *testing.T) {
	u, err := uri.Parse("http://example.com/path?q=1")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	req := NewRequest(u)
	req.Method = POST
	req.SetBody([]byte("hello"))

	got := string(req.Bytes())
	if !strings.HasPrefix(got, "POST /path?q=1 HTTP/1.1\r\n") {
		t.Fatalf("request line wrong: %q", got)
	}
	if !strings.Contains(got, "Host: example.com\r\n") {
		t.Fatalf("missing Host header: %q", got)
	}
	if !strings.Contains(got, "Content-Length: 5\r\n") {
		t.Fatalf("missing Content-Length: %q", got)
	}
	if !strings.HasSuffix(got, "\r\n\r\nhello") {
		t.Fatalf("missing blank line + body: %q", got)
	}
}

func TestHostHeaderOmitsDefaultPort(t *testing.T) {
	u, _ := uri.Parse("https://example.com/")
	req := NewRequest(u)
	v, _ := req.Headers.Get("Host")
	if v != "example.com" {
		t.Fatalf("Host = %q, want %q", v, "example.com")
	}
}

func TestHostHeaderKeepsNonDefaultPort(t *testing.T) {
	u, _ := uri.Parse("http://example.com:8080/")
	req := NewRequest(u)
	v, _ := req.Headers.Get("Host")
	if v != "example.com:8080" {
		t.Fatalf("Host = %q, want %q", v, "example.com:8080")
	}
}

func TestParseStatusLine(t *testing.T) {
	sl, err := ParseStatusLine("HTTP/1.1 200 OK\r\n")
	if err != nil {
		t.Fatalf("ParseStatusLine: %v", err)
	}
	if sl.Version != "HTTP/1.1" || sl.Code != 200 || sl.Reason != "OK" {
		t.Fatalf("got %+v", sl)
	}
}

func TestParseStatusLineReasonWithSpaces(t *testing.T) {
	sl, err := ParseStatusLine("HTTP/1.1 404 Not Found\r\n")
	if err != nil {
		t.Fatalf("ParseStatusLine: %v", err)
	}
	if sl.Reason != "Not Found" {
		t.Fatalf("Reason = %q, want %q", sl.Reason, "Not Found")
	}
}

func TestStatusCodeClassifiers(t *testing.T) {
	if !StatusCode(200).IsSuccess() {
		t.Fatal("200 should be success")
	}
	if !StatusCode(301).IsRedirect() {
		t.Fatal("301 should be redirect")
	}
	if !StatusCode(404).IsClientError() {
		t.Fatal("404 should be client error")
	}
	if !StatusCode(500).IsServerError() {
		t.Fatal("500 should be server error")
	}
	if !StatusCode(101).IsInformational() {
		t.Fatal("101 should be informational")
	}
}

func TestParseHead(t *testing.T) {
	raw := "HTTP/1.1 200 OK\r\n" +
		"Date: Mon, 01 Jan 2024 00:00:00 GMT\r\n" +
		"Content-Type: text/plain\r\n" +
		"Content-Length: 100\r\n" +
		"\r\n"

	resp, err := ParseHead([]byte(raw))
	if err != nil {
		t.Fatalf("ParseHead: %v", err)
	}
	if resp.StatusLine.Code != 200 {
		t.Fatalf("Code = %d, want 200", resp.StatusLine.Code)
	}
	n, ok := resp.ContentLength()
	if !ok || n != 100 {
		t.Fatalf("ContentLength() = %d, %v, want 100, true", n, ok)
	}
}

func TestHeaderContinuationLine(t *testing.T) {
	raw := "HTTP/1.1 200 OK\r\n" +
		"X-Long: part-one\r\n" +
		" part-two\r\n" +
		"\r\n"

	resp, err := ParseHead([]byte(raw))
	if err != nil {
		t.Fatalf("ParseHead: %v", err)
	}
	v, ok := resp.Headers.Get("X-Long")
	if !ok || v != "part-one part-two" {
		t.Fatalf("X-Long = %q, %v", v, ok)
	}
}

func TestIsChunked(t *testing.T) {
	raw := "HTTP/1.1 200 OK\r\nTransfer-Encoding: chunked\r\n\r\n"
	resp, err := ParseHead([]byte(raw))
	if err != nil {
		t.Fatalf("ParseHead: %v", err)
	}
	if !resp.IsChunked() {
		t.Fatal("expected IsChunked() to be true")
	}
}

func TestReadHead(t *testing.T) {
	raw := "HTTP/1.1 200 OK\r\nContent-Length: 5\r\n\r\nhello"
	r := bufio.NewReader(strings.NewReader(raw))

	head, err := ReadHead(r)
	if err != nil {
		t.Fatalf("ReadHead: %v", err)
	}
	wantHead := "HTTP/1.1 200 OK\r\nContent-Length: 5\r\n\r\n"
	if string(head) != wantHead {
		t.Fatalf("head = %q, want %q", head, wantHead)
	}

	rest := make([]byte, 5)
	if _, err := r.Read(rest); err != nil {
		t.Fatalf("reading body: %v", err)
	}
	if string(rest) != "hello" {
		t.Fatalf("body = %q, want %q", rest, "hello")
	}
}
