package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ayusman/mudra/internal/knn"
	"github.com/ayusman/mudra/internal/store"
)

func TestAPI_PoseWorkflow(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	dbStore, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	defer dbStore.Close()

	model, _ := knn.New(1)
	srv := New(Config{Store: dbStore.Poses(), Model: model})
	ts := httptest.NewServer(srv)
	defer ts.Close()

	client := ts.Client()

	// 1. Nothing saved yet
	resp, err := client.Get(ts.URL + "/load")
	if err != nil {
		t.Fatalf("GET /load error = %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("GET /load status = %d, want %d", resp.StatusCode, http.StatusNotFound)
	}

	// 2. Save two poses
	body := `[{"label":"fist","coordinates":[0,0,0]},{"label":"open","coordinates":[1,1,1]}]`
	resp, err = client.Post(ts.URL+"/save", "application/json", bytes.NewBufferString(body))
	if err != nil {
		t.Fatalf("POST /save error = %v", err)
	}
	msg, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || string(msg) != "Poses saved successfully." {
		t.Fatalf("POST /save = %d %q", resp.StatusCode, msg)
	}

	// 3. Load them back through the HTTP client backend
	records, err := store.NewClient(ts.URL).Load(context.Background())
	if err != nil {
		t.Fatalf("Client.Load() error = %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}

	// 4. Classify against what was saved
	resp, err = client.Post(ts.URL+"/api/classify", "application/json", strings.NewReader(`{"vector":[0.1,0.1,0.1]}`))
	if err != nil {
		t.Fatalf("POST /api/classify error = %v", err)
	}
	var result knn.Result
	json.NewDecoder(resp.Body).Decode(&result)
	resp.Body.Close()
	if result.Label != "fist" {
		t.Errorf("classified as %q, want fist", result.Label)
	}

	// 5. Learn a new label and see it persisted
	resp, err = client.Post(ts.URL+"/api/learn", "application/json", strings.NewReader(`{"label":"peace","vector":[5,5,5]}`))
	if err != nil {
		t.Fatalf("POST /api/learn error = %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("POST /api/learn status = %d", resp.StatusCode)
	}

	n, _ := dbStore.Poses().Count(context.Background())
	if n != 3 {
		t.Errorf("expected 3 stored poses, got %d", n)
	}

	// 6. Forget it again
	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/api/samples/peace", nil)
	resp, err = client.Do(req)
	if err != nil {
		t.Fatalf("DELETE /api/samples/peace error = %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("DELETE status = %d", resp.StatusCode)
	}
	if model.Len() != 2 {
		t.Errorf("expected model reloaded with 2 samples, got %d", model.Len())
	}
}

func TestHub_Broadcast(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	hub := NewHub(nil)
	ts := httptest.NewServer(New(Config{Hub: hub}))
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/live"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	// Wait for the server side to register the client.
	deadline := time.Now().Add(2 * time.Second)
	for hub.Clients() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if hub.Clients() != 1 {
		t.Fatalf("expected 1 client, got %d", hub.Clients())
	}

	hub.Show(knn.Result{Label: "fist", Confidence: 87.5, AvgDistance: 0.14})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var p Prediction
	if err := conn.ReadJSON(&p); err != nil {
		t.Fatalf("ReadJSON() error = %v", err)
	}
	if p.Label != "fist" || p.Confidence != 87.5 || p.Timestamp == 0 {
		t.Errorf("unexpected prediction: %+v", p)
	}

	// A late joiner gets the last prediction straight away.
	late, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer late.Close()

	late.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := late.ReadJSON(&p); err != nil {
		t.Fatalf("late ReadJSON() error = %v", err)
	}
	if p.Label != "fist" {
		t.Errorf("late joiner got %q, want fist", p.Label)
	}
}

func TestServer_ListenAndServeShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := New(Config{})

	done := make(chan error, 1)
	go func() { done <- s.ListenAndServe(ctx, "127.0.0.1:0") }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("ListenAndServe() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
