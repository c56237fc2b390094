package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHTTP_PostHeading(t *testing.T) {
	events := make(chan Event, 1)
	mux := newHTTPMux(nil, events, testLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/heading", strings.NewReader(`{"degrees": 271.5}`))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d (%s)", rec.Code, rec.Body.String())
	}
	select {
	case ev := <-events:
		hs, ok := ev.(HeadingSample)
		if !ok || hs.Degrees != 271.5 || hs.Source != sourceHTTP {
			t.Fatalf("unexpected event: %#v", ev)
		}
	default:
		t.Fatalf("expected an event to be queued")
	}

	// Queue is full now that nothing drains it.
	events <- HeadingSample{}
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/heading", strings.NewReader(`{"degrees": 1}`)))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 on full queue, got %d", rec.Code)
	}
}

func TestHTTP_PostHeading_BadRequests(t *testing.T) {
	events := make(chan Event, 4)
	mux := newHTTPMux(nil, events, testLogger())

	tests := []struct {
		name   string
		method string
		body   string
		want   int
	}{
		{"wrong method", http.MethodGet, "", http.StatusMethodNotAllowed},
		{"not json", http.MethodPost, "north", http.StatusBadRequest},
		{"missing degrees", http.MethodPost, `{"heading": 3}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(tt.method, "/api/heading", strings.NewReader(tt.body)))
			if rec.Code != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, rec.Code)
			}
		})
	}
	if len(events) != 0 {
		t.Fatalf("expected no events, got %d", len(events))
	}
}

func TestHTTP_PostLocation(t *testing.T) {
	events := make(chan Event, 1)
	mux := newHTTPMux(nil, events, testLogger())

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/location", strings.NewReader(`{"lat": 48.8566, "lon": 2.3522}`)))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}
	lo, ok := (<-events).(LocationObserved)
	if !ok || lo.Latitude != 48.8566 || lo.Longitude != 2.3522 || lo.Source != sourceHTTP {
		t.Fatalf("unexpected event: %#v", lo)
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/location", strings.NewReader(`{"lat": 48.8566}`)))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without lon, got %d", rec.Code)
	}
}

func TestHTTP_GetState(t *testing.T) {
	events := make(chan Event, 1)
	mux := newHTTPMux(nil, events, testLogger())

	go func() {
		req := (<-events).(RequestStateSnapshot)
		req.Reply <- StateSnapshot{Display: 42, Bearing: 42, Cardinal: "NE", Turns: 3}
	}()

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/state", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("unexpected content type %q", ct)
	}

	var snap StateSnapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if snap.Display != 42 || snap.Cardinal != "NE" || snap.Turns != 3 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
}

func TestHTTP_Healthz(t *testing.T) {
	mux := newHTTPMux(nil, make(chan Event), testLogger())
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "ok\n" {
		t.Fatalf("unexpected healthz response: %d %q", rec.Code, rec.Body.String())
	}
}
