package htmlwatcher

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHTTPSourceFetchReturnsBodyAndStableHash(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body><div class="x">hi</div></body></html>`))
	}))
	defer srv.Close()

	src := NewHTTPSource(srv.URL, nil)
	html1, hash1, err := src.Fetch()
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	html2, hash2, err := src.Fetch()
	if err != nil {
		t.Fatalf("second Fetch: %v", err)
	}

	if html1 != html2 {
		t.Fatalf("expected identical bodies across fetches")
	}
	if hash1 != hash2 {
		t.Fatalf("expected stable hash for unchanged content, got %q vs %q", hash1, hash2)
	}
}

func TestHTTPSourceFetchErrorsOnNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	src := NewHTTPSource(srv.URL, nil)
	if _, _, err := src.Fetch(); err == nil {
		t.Fatalf("expected error for 404 response")
	}
}
