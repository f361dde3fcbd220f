package httpwire

import (
	"bytes"
	"io"
	"net"
	"testing"
)

func TestGetConvenienceFunction(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		buf := make([]byte, 4096)
		conn.Read(buf)
		conn.Write([]byte("HTTP/1.1 200 OK\r\nContent-Length: 2\r\n\r\nhi"))
	}()

	var body bytes.Buffer
	resp, err := Get("http://"+ln.Addr().String()+"/", &body)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if resp.StatusLine.Code != 200 {
		t.Fatalf("Code = %d, want 200", resp.StatusLine.Code)
	}
	if body.String() != "hi" {
		t.Fatalf("body = %q, want hi", body.String())
	}
}

func TestSendBufferedSpillsPastLimit(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer ln.Close()

	payload := bytes.Repeat([]byte("x"), 64)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		buf := make([]byte, 4096)
		conn.Read(buf)
		conn.Write([]byte("HTTP/1.1 200 OK\r\nContent-Length: 64\r\n\r\n"))
		conn.Write(payload)
	}()

	resp, b, err := SendBuffered("http://"+ln.Addr().String()+"/", Options{BodyMemLimit: 8})
	if err != nil {
		t.Fatalf("SendBuffered: %v", err)
	}
	defer b.Close()

	if resp.StatusLine.Code != 200 {
		t.Fatalf("Code = %d, want 200", resp.StatusLine.Code)
	}
	if !b.IsSpilled() {
		t.Fatal("expected the buffer to spill past an 8-byte limit")
	}
	if b.Size() != int64(len(payload)) {
		t.Fatalf("Size() = %d, want %d", b.Size(), len(payload))
	}

	r, err := b.Reader()
	if err != nil {
		t.Fatalf("Reader: %v", err)
	}
	defer r.Close()
	got := make([]byte, len(payload))
	if _, err := io.ReadFull(r, got); err != nil {
		t.Fatalf("ReadFull: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("got %q, want %q", got, payload)
	}
}
