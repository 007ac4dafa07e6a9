package web

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

type fakeSource struct {
	snap  Snapshot
	beats []int64
	rows  [][]float64
}

func (f *fakeSource) Snapshot() Snapshot { return f.snap }
func (f *fakeSource) Beats() []int64     { return f.beats }
func (f *fakeSource) Row(frame int) ([]float64, bool) {
	if frame < 0 || frame >= len(f.rows) {
		return nil, false
	}
	return f.rows[frame], true
}

func newTestServer(t *testing.T, src Source) (*Server, *httptest.Server) {
	t.Helper()
	s := NewServer(src, log.New(io.Discard, "", 0))
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, ts
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return resp.StatusCode
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("decode %s: %v", url, err)
	}
	return resp.StatusCode
}

func TestStatusReportsSnapshot(t *testing.T) {
	src := &fakeSource{snap: Snapshot{Frame: 7, Frames: 100, Beat: true, Levels: Levels{Bass: 0.5}}}
	_, ts := newTestServer(t, src)

	var got Snapshot
	if code := getJSON(t, ts.URL+"/api/status", &got); code != http.StatusOK {
		t.Fatalf("status code %d", code)
	}
	if got.Frame != 7 || got.Frames != 100 || !got.Beat || got.Levels.Bass != 0.5 {
		t.Fatalf("unexpected snapshot %+v", got)
	}
}

func TestBeatsEndpoint(t *testing.T) {
	_, ts := newTestServer(t, &fakeSource{beats: []int64{46439, 92879}})

	var got BeatsResponse
	getJSON(t, ts.URL+"/api/beats", &got)
	if got.Count != 2 || got.Beats[0] != 46439 || got.Beats[1] != 92879 {
		t.Fatalf("unexpected beats %+v", got)
	}

	_, empty := newTestServer(t, &fakeSource{})
	resp, err := http.Get(empty.URL + "/api/beats")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), `"beats":[]`) {
		t.Fatalf("expected empty array, got %s", body)
	}
}

func TestSpectrumEndpoint(t *testing.T) {
	src := &fakeSource{
		snap: Snapshot{Frame: 1},
		rows: [][]float64{{1, 2, 3}, {4, 5, 6}},
	}
	_, ts := newTestServer(t, src)

	var got SpectrumResponse
	getJSON(t, ts.URL+"/api/spectrum", &got)
	if got.Frame != 1 || len(got.Bins) != 3 || got.Bins[0] != 4 {
		t.Fatalf("current frame: %+v", got)
	}

	getJSON(t, ts.URL+"/api/spectrum?frame=0", &got)
	if got.Frame != 0 || got.Bins[2] != 3 {
		t.Fatalf("frame 0: %+v", got)
	}

	if code := getJSON(t, ts.URL+"/api/spectrum?frame=9", &got); code != http.StatusNotFound {
		t.Fatalf("out of range code=%d want 404", code)
	}
	if code := getJSON(t, ts.URL+"/api/spectrum?frame=x", &got); code != http.StatusBadRequest {
		t.Fatalf("bad frame code=%d want 400", code)
	}
}

func TestWebSocketStreamsStatus(t *testing.T) {
	src := &fakeSource{snap: Snapshot{Frame: 3, Frames: 10}}
	s, ts := newTestServer(t, src)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.broadcastLoop(ctx)
	go s.statusUpdateLoop(ctx)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	first := strings.SplitN(string(msg), "\n", 2)[0]
	var got Snapshot
	if err := json.Unmarshal([]byte(first), &got); err != nil {
		t.Fatalf("unmarshal %q: %v", first, err)
	}
	if got.Frame != 3 || got.Frames != 10 {
		t.Fatalf("unexpected snapshot %+v", got)
	}
}
