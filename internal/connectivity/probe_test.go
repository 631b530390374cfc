package connectivity

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestIsOnlineOn2xx(t *testing.T) {
	var method string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	probe := NewProbe(server.URL, time.Second, zap.NewNop())
	if !probe.IsOnline(context.Background()) {
		t.Fatal("expected online")
	}
	if method != http.MethodHead {
		t.Fatalf("expected HEAD request, got %s", method)
	}
}

func TestIsOnlineFalseOnServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	probe := NewProbe(server.URL, time.Second, zap.NewNop())
	if probe.IsOnline(context.Background()) {
		t.Fatal("expected offline on 502")
	}
	if err := probe.Check(context.Background()); !errors.Is(err, ErrUnreachable) {
		t.Fatalf("expected ErrUnreachable, got %v", err)
	}
}

func TestIsOnlineFalseOnTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer server.Close()
	defer close(release)

	probe := NewProbe(server.URL, 50*time.Millisecond, zap.NewNop())
	if probe.IsOnline(context.Background()) {
		t.Fatal("expected offline on timeout")
	}
}

func TestIsOnlineFalseWhenUnreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	probe := NewProbe(url, time.Second, zap.NewNop())
	if probe.IsOnline(context.Background()) {
		t.Fatal("expected offline when nothing listens")
	}
}

func TestIsOnlineDoesNotCache(t *testing.T) {
	status := http.StatusOK
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}))
	defer server.Close()

	probe := NewProbe(server.URL, time.Second, zap.NewNop())
	if !probe.IsOnline(context.Background()) {
		t.Fatal("expected online on first check")
	}
	status = http.StatusServiceUnavailable
	if probe.IsOnline(context.Background()) {
		t.Fatal("expected second check to observe the outage")
	}
}
