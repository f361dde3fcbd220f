package auth

import "testing"

func TestBasicHeaderValue(t *testing.T) {
	c := NewBasic("Aladdin", "open sesame")
	want := "Basic QWxhZGRpbjpvcGVuIHNlc2FtZQ=="
	if got := c.HeaderValue(); got != want {
		t.Fatalf("HeaderValue() = %q, want %q", got, want)
	}
}

func TestBearerHeaderValue(t *testing.T) {
	c := NewBearer("abc123")
	want := "Bearer abc123"
	if got := c.HeaderValue(); got != want {
		t.Fatalf("HeaderValue() = %q, want %q", got, want)
	}
}

func TestBasicZeroClearsPassword(t *testing.T) {
	c := NewBasic("user", "secret")
	c.Zero()
	for _, b := range c.password {
		if b != 0 {
			t.Fatal("password bytes were not zeroed")
		}
	}
}
