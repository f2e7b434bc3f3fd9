package idempotency

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestCachePutGet(t *testing.T) {
	c := New(time.Minute)
	key := Key(http.MethodPost, "/content-items", "k1")

	if _, _, _, ok := c.Get(key); ok {
		t.Fatal("Get on empty cache should miss")
	}

	h := http.Header{}
	h.Set("Content-Type", "application/json")
	c.Put(key, http.StatusCreated, h, []byte(`{"id":1}`))

	status, header, body, ok := c.Get(key)
	if !ok {
		t.Fatal("Get after Put should hit")
	}
	if status != http.StatusCreated {
		t.Errorf("status = %d, want %d", status, http.StatusCreated)
	}
	if header.Get("Content-Type") != "application/json" {
		t.Errorf("header missing, got %v", header)
	}
	if string(body) != `{"id":1}` {
		t.Errorf("body = %q, want %q", body, `{"id":1}`)
	}
}

func TestCacheExpires(t *testing.T) {
	c := New(time.Millisecond)
	key := Key(http.MethodPost, "/content-items", "k2")
	c.Put(key, http.StatusOK, http.Header{}, []byte("ok"))

	time.Sleep(5 * time.Millisecond)

	if _, _, _, ok := c.Get(key); ok {
		t.Error("expired entry should not be returned")
	}
}

func TestCacheRefusesServerErrors(t *testing.T) {
	c := New(time.Minute)
	key := Key(http.MethodPost, "/content-items", "k3")
	c.Put(key, http.StatusInternalServerError, http.Header{}, []byte("boom"))

	if _, _, _, ok := c.Get(key); ok {
		t.Error("a 5xx response must never be cached")
	}
}

func TestMiddlewareReplaysIdenticalRequest(t *testing.T) {
	cache := New(time.Minute)
	calls := 0
	handler := Middleware(cache)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":1}`))
	}))

	r1 := httptest.NewRequest(http.MethodPost, "/content-items", nil)
	r1.Header.Set("Idempotency-Key", "k1")
	rr1 := httptest.NewRecorder()
	handler.ServeHTTP(rr1, r1)

	r2 := httptest.NewRequest(http.MethodPost, "/content-items", nil)
	r2.Header.Set("Idempotency-Key", "k1")
	rr2 := httptest.NewRecorder()
	handler.ServeHTTP(rr2, r2)

	if calls != 1 {
		t.Errorf("handler called %d times, want 1", calls)
	}
	if rr2.Body.String() != rr1.Body.String() {
		t.Errorf("replay body = %q, want %q", rr2.Body.String(), rr1.Body.String())
	}
	if rr2.Header().Get(ReplayHeader) != "true" {
		t.Error("replayed response should carry the replay header")
	}
}

func TestMiddlewareSkipsGET(t *testing.T) {
	cache := New(time.Minute)
	calls := 0
	handler := Middleware(cache)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))

	for i := 0; i < 2; i++ {
		r := httptest.NewRequest(http.MethodGet, "/content-items", nil)
		r.Header.Set("Idempotency-Key", "k1")
		handler.ServeHTTP(httptest.NewRecorder(), r)
	}

	if calls != 2 {
		t.Errorf("GET requests should never be memoized, handler called %d times", calls)
	}
}
