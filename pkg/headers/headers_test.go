package headers

import "testing"

func TestSetGetCaseInsensitive(t *testing.T) {
	m := New()
	m.Set("Content-Type", "text/plain")

	if v, ok := m.Get("content-type"); !ok || v != "text/plain" {
		t.Fatalf("Get(content-type) = %q, %v", v, ok)
	}
	if v, ok := m.Get("CONTENT-TYPE"); !ok || v != "text/plain" {
		t.Fatalf("Get(CONTENT-TYPE) = %q, %v", v, ok)
	}
}

func TestSetReplacesExisting(t *testing.T) {
	m := New()
	m.Set("X-Count", "1")
	m.Set("x-count", "2")

	if m.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", m.Len())
	}
	if v, _ := m.Get("X-Count"); v != "2" {
		t.Fatalf("Get(X-Count) = %q, want 2", v)
	}
}

func TestOrderPreserved(t *testing.T) {
	m := New()
	m.Set("Host", "example.com")
	m.Set("Accept", "*/*")
	m.Set("User-Agent", "httpwire")

	var order []string
	m.Range(func(name, _ string) bool {
		order = append(order, name)
		return true
	})

	want := []string{"Host", "Accept", "User-Agent"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order[%d] = %q, want %q", i, order[i], want[i])
		}
	}
}

func TestDel(t *testing.T) {
	m := New()
	m.Set("A", "1")
	m.Set("B", "2")
	m.Set("C", "3")
	m.Del("b")

	if m.Has("B") {
		t.Fatal("B should have been deleted")
	}
	if m.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", m.Len())
	}
	if v, _ := m.Get("C"); v != "3" {
		t.Fatalf("Get(C) = %q, want 3", v)
	}
}

func TestHeaderBlockRoundTrip(t *testing.T) {
	m := New()
	m.Set("Host", "example.com")
	m.Set("Accept", "*/*")

	block := m.String()
	want := "Host: example.com\r\nAccept: */*\r\n"
	if block != want {
		t.Fatalf("String() = %q, want %q", block, want)
	}
}
