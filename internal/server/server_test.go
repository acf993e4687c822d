package server

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/clipfeed/admin-dashboard/internal/config"
	"github.com/clipfeed/admin-dashboard/internal/distributor"
	"github.com/clipfeed/admin-dashboard/internal/snapshot"
)

// fakeDist implements Distributor for handler tests.
type fakeDist struct {
	mu       sync.Mutex
	snap     snapshot.Snapshot
	status   distributor.Status
	refreshs int
	subs     map[string]distributor.Callback
	nextID   int
}

func newFakeDist(snap snapshot.Snapshot) *fakeDist {
	return &fakeDist{
		snap:   snap,
		status: distributor.Status{Running: true, Transport: distributor.TransportPush},
		subs:   make(map[string]distributor.Callback),
	}
}

func (f *fakeDist) Subscribe(label string, fn distributor.Callback) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	id := fmt.Sprintf("%s-%d", label, f.nextID)
	f.subs[id] = fn
	return id
}

func (f *fakeDist) Unsubscribe(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.subs[id]
	delete(f.subs, id)
	return ok
}

func (f *fakeDist) CurrentSnapshot() snapshot.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap.Clone()
}

func (f *fakeDist) DomainValue(key string) (snapshot.Snapshot, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.snap[key]
	if !ok {
		return nil, false
	}
	return snapshot.Snapshot{key: v}, true
}

func (f *fakeDist) Refresh() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshs++
}

func (f *fakeDist) Status() distributor.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

func (f *fakeDist) broadcast(snap snapshot.Snapshot) {
	f.mu.Lock()
	fns := make([]distributor.Callback, 0, len(f.subs))
	for _, fn := range f.subs {
		fns = append(fns, fn)
	}
	f.mu.Unlock()
	for _, fn := range fns {
		fn(snap)
	}
}

func testServerConfig() config.ServerConfig {
	return config.ServerConfig{
		Port:             "0",
		RefreshPerSecond: 100,
		RefreshBurst:     2,
	}
}

func newTestServer(t *testing.T, dist Distributor, cfg config.ServerConfig) *httptest.Server {
	t.Helper()
	logger, _ := zap.NewDevelopment()
	srv := NewServer(dist, cfg, logger)
	ts := httptest.NewServer(NewRouter(srv, logger))
	t.Cleanup(ts.Close)
	return ts
}

func TestSnapshotEndpoint(t *testing.T) {
	dist := newFakeDist(snapshot.Snapshot{"dashboard": []byte(`{"jobs":5}`)})
	ts := newTestServer(t, dist, testServerConfig())

	resp, err := http.Get(ts.URL + "/api/v1/snapshot")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var body map[string]json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if string(body["dashboard"]) != `{"jobs":5}` {
		t.Errorf("unexpected body: %v", body)
	}
}

func TestSnapshotEndpointNoDataYet(t *testing.T) {
	dist := newFakeDist(nil)
	ts := newTestServer(t, dist, testServerConfig())

	resp, err := http.Get(ts.URL + "/api/v1/snapshot")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestDomainEndpoint(t *testing.T) {
	dist := newFakeDist(snapshot.Snapshot{
		"dashboard": []byte(`{"jobs":5}`),
		"queue":     []byte(`{"depth":2}`),
	})
	ts := newTestServer(t, dist, testServerConfig())

	resp, err := http.Get(ts.URL + "/api/v1/snapshot/queue")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var body map[string]json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if len(body) != 1 || string(body["queue"]) != `{"depth":2}` {
		t.Errorf("unexpected body: %v", body)
	}

	resp2, err := http.Get(ts.URL + "/api/v1/snapshot/nonexistent")
	if err != nil {
		t.Fatal(err)
	}
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d for unknown domain, want 404", resp2.StatusCode)
	}
}

func TestStatusEndpoint(t *testing.T) {
	dist := newFakeDist(nil)
	ts := newTestServer(t, dist, testServerConfig())

	resp, err := http.Get(ts.URL + "/api/v1/status")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var st distributor.Status
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		t.Fatal(err)
	}
	if !st.Running || st.Transport != distributor.TransportPush {
		t.Errorf("unexpected status: %+v", st)
	}
}

func TestRefreshEndpointRateLimited(t *testing.T) {
	dist := newFakeDist(nil)
	cfg := testServerConfig()
	cfg.RefreshPerSecond = 0.001
	cfg.RefreshBurst = 2
	ts := newTestServer(t, dist, cfg)

	statuses := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		resp, err := http.Post(ts.URL+"/api/v1/refresh", "application/json", nil)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		statuses = append(statuses, resp.StatusCode)
	}

	if statuses[0] != http.StatusAccepted || statuses[1] != http.StatusAccepted {
		t.Errorf("first requests rejected: %v", statuses)
	}
	if statuses[2] != http.StatusTooManyRequests {
		t.Errorf("burst not limited: %v", statuses)
	}
	if dist.refreshs != 2 {
		t.Errorf("refresh forwarded %d times, want 2", dist.refreshs)
	}
}

func TestEventsStreamsInitialAndUpdates(t *testing.T) {
	dist := newFakeDist(snapshot.Snapshot{"dashboard": []byte(`{"jobs":1}`)})
	ts := newTestServer(t, dist, testServerConfig())

	resp, err := http.Get(ts.URL + "/api/v1/events")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content-type = %q", ct)
	}

	reader := bufio.NewReader(resp.Body)
	lines := make(chan string, 32)
	go func() {
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				close(lines)
				return
			}
			lines <- strings.TrimRight(line, "\n")
		}
	}()

	readEvent := func(what string) string {
		var data string
		deadline := time.After(2 * time.Second)
		for {
			select {
			case line, ok := <-lines:
				if !ok {
					t.Fatalf("stream closed waiting for %s", what)
				}
				if strings.HasPrefix(line, "data: ") {
					data = strings.TrimPrefix(line, "data: ")
				}
				if line == "" && data != "" {
					return data
				}
			case <-deadline:
				t.Fatalf("timed out waiting for %s", what)
			}
		}
	}

	initial := readEvent("initial snapshot")
	if !strings.Contains(initial, `"jobs":1`) {
		t.Errorf("initial event = %s", initial)
	}

	// Wait for the subscription to be registered before broadcasting.
	deadline := time.Now().Add(2 * time.Second)
	for {
		dist.mu.Lock()
		n := len(dist.subs)
		dist.mu.Unlock()
		if n > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("sse handler never subscribed")
		}
		time.Sleep(5 * time.Millisecond)
	}

	dist.broadcast(snapshot.Snapshot{"dashboard": []byte(`{"jobs":2}`)})

	update := readEvent("broadcast update")
	if !strings.Contains(update, `"jobs":2`) {
		t.Errorf("update event = %s", update)
	}
}
