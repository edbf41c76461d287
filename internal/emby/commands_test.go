package emby

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

type recordedRequest struct {
	Method string
	Path   string
	Query  string
	Body   string
}

func newRecordingServer(t *testing.T) (*Client, *[]recordedRequest) {
	t.Helper()
	var mu sync.Mutex
	var recorded []recordedRequest
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		recorded = append(recorded, recordedRequest{
			Method: r.Method,
			Path:   r.URL.Path,
			Query:  r.URL.RawQuery,
			Body:   string(body),
		})
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(ts.Close)
	return NewWithBaseURL(ts.URL, "k", nil), &recorded
}

func TestPlayCommand(t *testing.T) {
	c, recorded := newRecordingServer(t)
	if err := c.PlayCommand(context.Background(), "s1", "Pause"); err != nil {
		t.Fatal(err)
	}
	r := (*recorded)[0]
	if r.Method != http.MethodPost || r.Path != "/Sessions/s1/Playing/Pause" {
		t.Errorf("got %s %s", r.Method, r.Path)
	}
}

func TestGeneralCommandRoutesPlaybackToPlayingEndpoint(t *testing.T) {
	c, recorded := newRecordingServer(t)
	if err := c.GeneralCommand(context.Background(), "s1", "NextTrack"); err != nil {
		t.Fatal(err)
	}
	if (*recorded)[0].Path != "/Sessions/s1/Playing/NextTrack" {
		t.Errorf("path = %s", (*recorded)[0].Path)
	}
}

func TestGeneralCommandSendsNamedCommand(t *testing.T) {
	c, recorded := newRecordingServer(t)
	if err := c.GeneralCommand(context.Background(), "s1", "MoveUp"); err != nil {
		t.Fatal(err)
	}
	r := (*recorded)[0]
	if r.Path != "/Sessions/s1/Command" {
		t.Errorf("path = %s", r.Path)
	}
	var body map[string]string
	if err := json.Unmarshal([]byte(r.Body), &body); err != nil {
		t.Fatal(err)
	}
	if body["Name"] != "MoveUp" {
		t.Errorf("command name = %q, want MoveUp", body["Name"])
	}
}

func TestSetVolumeClamps(t *testing.T) {
	c, recorded := newRecordingServer(t)
	if err := c.SetVolume(context.Background(), "s1", 150); err != nil {
		t.Fatal(err)
	}
	r := (*recorded)[0]
	if r.Path != "/Sessions/s1/Command/SetVolume" {
		t.Errorf("path = %s", r.Path)
	}
	if r.Query != "Volume=100" {
		t.Errorf("query = %q, want Volume=100", r.Query)
	}
}

func TestSendMessage(t *testing.T) {
	c, recorded := newRecordingServer(t)
	if err := c.SendMessage(context.Background(), "s1", "Notice", "Server going down", 5000); err != nil {
		t.Fatal(err)
	}
	r := (*recorded)[0]
	if r.Path != "/Sessions/s1/Message" {
		t.Errorf("path = %s", r.Path)
	}
	var body map[string]any
	if err := json.Unmarshal([]byte(r.Body), &body); err != nil {
		t.Fatal(err)
	}
	if body["Header"] != "Notice" || body["Text"] != "Server going down" {
		t.Errorf("body = %v", body)
	}
	if body["TimeoutMs"] != float64(5000) {
		t.Errorf("timeout = %v, want 5000", body["TimeoutMs"])
	}
}

func TestPlayMediaDefaultsToPlayNow(t *testing.T) {
	c, recorded := newRecordingServer(t)
	if err := c.PlayMedia(context.Background(), "s1", []string{"i1", "i2"}, ""); err != nil {
		t.Fatal(err)
	}
	r := (*recorded)[0]
	if r.Path != "/Sessions/s1/Playing" {
		t.Errorf("path = %s", r.Path)
	}
	q := r.Query
	if q != "ItemIds=i1%2Ci2&PlayCommand=PlayNow" {
		t.Errorf("query = %q", q)
	}
}

func TestStopSessionStopsThenRemoves(t *testing.T) {
	c, recorded := newRecordingServer(t)
	if err := c.StopSession(context.Background(), "s1"); err != nil {
		t.Fatal(err)
	}
	if len(*recorded) != 2 {
		t.Fatalf("expected 2 requests, got %d", len(*recorded))
	}
	if (*recorded)[0].Path != "/Sessions/s1/Playing/Stop" {
		t.Errorf("first = %s", (*recorded)[0].Path)
	}
	second := (*recorded)[1]
	if second.Method != http.MethodDelete || second.Path != "/Sessions/s1" {
		t.Errorf("second = %s %s", second.Method, second.Path)
	}
}

func TestServerLifecycleCommands(t *testing.T) {
	c, recorded := newRecordingServer(t)
	ctx := context.Background()
	if err := c.Restart(ctx); err != nil {
		t.Fatal(err)
	}
	if err := c.Shutdown(ctx); err != nil {
		t.Fatal(err)
	}
	if err := c.ScanLibrary(ctx); err != nil {
		t.Fatal(err)
	}
	want := []string{"/System/Restart", "/System/Shutdown", "/Library/Refresh"}
	for i, path := range want {
		if (*recorded)[i].Path != path {
			t.Errorf("call %d path = %s, want %s", i, (*recorded)[i].Path, path)
		}
	}
}
