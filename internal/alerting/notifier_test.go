package alerting

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func staleNote() Notification {
	return Notification{
		At:          time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC),
		Quantity:    "rate_a_to_b",
		Label:       "QUAI->QI",
		Failures:    5,
		LastGood:    decimal.RequireFromString("16.25"),
		LastUpdated: time.Date(2025, 5, 1, 9, 57, 30, 0, time.UTC),
		LastError:   "fetch failed: connection refused",
		Channels:    []string{"telegram"},
	}
}

func TestTelegramNotifierSuccess(t *testing.T) {
	received := make(map[string]string)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.True(t, strings.HasSuffix(r.URL.Path, "/bottoken/sendMessage"), r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())
	require.NoError(t, notifier.Notify(context.Background(), staleNote()))

	require.Equal(t, "chat", received["chat_id"])
	require.Contains(t, received["text"], "QUAI->QI (rate_a_to_b)")
	require.Contains(t, received["text"], "Failed refreshes: 5")
	require.Contains(t, received["text"], "16.25")
}

func TestTelegramNotifierError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": false})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())
	require.Error(t, notifier.Notify(context.Background(), staleNote()))
}

func TestTelegramNotifierHTTPStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger()).Notify(context.Background(), staleNote())
	require.ErrorContains(t, err, "502")
}

func TestRenderMessageNeverObservedAndRecovered(t *testing.T) {
	note := staleNote()
	note.LastUpdated = time.Time{}
	require.Contains(t, renderMessage(note), "never observed")

	note = staleNote()
	note.Recovered = true
	msg := renderMessage(note)
	require.Contains(t, msg, "Recovered")
	require.NotContains(t, msg, "Failed refreshes")
}

type recordingNotifier struct {
	notes []Notification
	err   error
}

func (r *recordingNotifier) Notify(_ context.Context, n Notification) error {
	r.notes = append(r.notes, n)
	return r.err
}

func TestMultiDeliversToAll(t *testing.T) {
	failing := &recordingNotifier{err: errors.New("down")}
	ok := &recordingNotifier{}

	err := Multi{failing, ok, NewLogNotifier(testLogger())}.Notify(context.Background(), staleNote())
	require.EqualError(t, err, "down")
	require.Len(t, failing.notes, 1)
	require.Len(t, ok.notes, 1)
}

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}
