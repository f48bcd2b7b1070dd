package geoip

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestLookupSuccess(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"status":"success","country":"Germany","city":"Berlin","isp":"Example Carrier"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, discard())
	loc := c.Lookup(context.Background(), "93.184.216.34")
	if loc.Country != "Germany" || loc.City != "Berlin" || loc.ISP != "Example Carrier" {
		t.Fatalf("loc = %+v", loc)
	}

	// Second lookup serves from cache.
	c.Lookup(context.Background(), "93.184.216.34")
	if calls.Load() != 1 {
		t.Fatalf("upstream called %d times, want 1", calls.Load())
	}
}

func TestLookupFailureReturnsUnknown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"fail","message":"reserved range"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, discard())
	if loc := c.Lookup(context.Background(), "93.184.216.34"); loc != Unknown {
		t.Fatalf("loc = %+v, want Unknown", loc)
	}
}

func TestLookupUpstreamErrorNotCached(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, discard())
	c.Lookup(context.Background(), "93.184.216.34")
	c.Lookup(context.Background(), "93.184.216.34")
	if calls.Load() != 2 {
		t.Fatalf("failed lookups were cached, calls = %d", calls.Load())
	}
}

func TestPrivateAddressesSkipNetwork(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("private address reached the network")
	}))
	defer srv.Close()

	c := NewClient(srv.URL, discard())
	for _, ip := range []string{"192.168.1.1", "10.0.0.5", "127.0.0.1", "0.0.0.0"} {
		loc := c.Lookup(context.Background(), ip)
		if loc.Country != "Local" {
			t.Fatalf("%s resolved to %+v", ip, loc)
		}
	}
}

func TestUnparsableAddress(t *testing.T) {
	c := NewClient("http://127.0.0.1:0", discard())
	if loc := c.Lookup(context.Background(), "not-an-ip"); loc != Unknown {
		t.Fatalf("loc = %+v, want Unknown", loc)
	}
}
