// Package web exposes playback progress, detected beats and spectrogram rows
// over HTTP and a websocket feed.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/guidoenr/beatscope/internal/analyzer"
)

const (
	statusInterval = 500 * time.Millisecond
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	writeWait      = 10 * time.Second
)

// Source is what the server reports on. App implements it.
type Source interface {
	Snapshot() Snapshot
	Beats() []int64
	Row(frame int) ([]float64, bool)
}

// Levels mirrors analyzer.Levels for JSON.
type Levels struct {
	Bass   float64 `json:"bass"`
	Mid    float64 `json:"mid"`
	Treble float64 `json:"treble"`
}

// LevelsOf converts analyzer levels.
func LevelsOf(l analyzer.Levels) Levels {
	return Levels{Bass: l.Bass, Mid: l.Mid, Treble: l.Treble}
}

// Snapshot is the playback state at the last rendered frame.
type Snapshot struct {
	Frame           int     `json:"frame"`
	Frames          int     `json:"frames"`
	ElapsedMs       int64   `json:"elapsedMs"`
	FrameDurationNs int64   `json:"frameDurationNs"`
	Beat            bool    `json:"beat"`
	Levels          Levels  `json:"levels"`
	Paused          bool    `json:"paused"`
	FPS             float64 `json:"fps"`
}

// BeatsResponse lists every detected beat in microseconds.
type BeatsResponse struct {
	Count int     `json:"count"`
	Beats []int64 `json:"beats"`
}

// SpectrumResponse carries one spectrogram row.
type SpectrumResponse struct {
	Frame int       `json:"frame"`
	Bins  []float64 `json:"bins"`
}

type Server struct {
	mu        sync.RWMutex
	src       Source
	log       *log.Logger
	clients   map[*websocketClient]bool
	broadcast chan []byte
	upgrader  websocket.Upgrader
}

type websocketClient struct {
	conn   *websocket.Conn
	send   chan []byte
	server *Server
}

func NewServer(src Source, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(os.Stderr, "", log.LstdFlags)
	}
	return &Server{
		src:       src,
		log:       logger,
		clients:   make(map[*websocketClient]bool),
		broadcast: make(chan []byte, 256),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/beats", s.handleBeats)
	mux.HandleFunc("/api/spectrum", s.handleSpectrum)
	mux.HandleFunc("/ws", s.handleWebSocket)
	return mux
}

// Start serves on port until ctx is done.
func (s *Server) Start(ctx context.Context, port int) error {
	addr := fmt.Sprintf(":%d", port)
	srv := &http.Server{Addr: addr, Handler: s.Handler()}

	s.log.Printf("[web] server starting on http://0.0.0.0%s", addr)

	go s.broadcastLoop(ctx)
	go s.statusUpdateLoop(ctx)
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.src.Snapshot())
}

func (s *Server) handleBeats(w http.ResponseWriter, r *http.Request) {
	beats := s.src.Beats()
	if beats == nil {
		beats = []int64{}
	}
	writeJSON(w, BeatsResponse{Count: len(beats), Beats: beats})
}

func (s *Server) handleSpectrum(w http.ResponseWriter, r *http.Request) {
	frame := s.src.Snapshot().Frame
	if raw := r.URL.Query().Get("frame"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			http.Error(w, "frame must be an integer", http.StatusBadRequest)
			return
		}
		frame = n
	}
	row, ok := s.src.Row(frame)
	if !ok {
		http.Error(w, fmt.Sprintf("frame %d out of range", frame), http.StatusNotFound)
		return
	}
	writeJSON(w, SpectrumResponse{Frame: frame, Bins: row})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Printf("[web] websocket upgrade error: %v", err)
		return
	}

	client := &websocketClient{
		conn:   conn,
		send:   make(chan []byte, 256),
		server: s,
	}

	s.mu.Lock()
	s.clients[client] = true
	s.mu.Unlock()

	go client.writePump()
	go client.readPump()
}

// removeClient drops c and closes its send channel once.
func (s *Server) removeClient(c *websocketClient) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clients[c]; ok {
		delete(s.clients, c)
		close(c.send)
	}
}

func (s *Server) broadcastLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			s.mu.Lock()
			for client := range s.clients {
				delete(s.clients, client)
				close(client.send)
			}
			s.mu.Unlock()
			return
		case message := <-s.broadcast:
			s.mu.Lock()
			for client := range s.clients {
				select {
				case client.send <- message:
				default:
					close(client.send)
					delete(s.clients, client)
				}
			}
			s.mu.Unlock()
		}
	}
}

func (s *Server) statusUpdateLoop(ctx context.Context) {
	ticker := time.NewTicker(statusInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		data, err := json.Marshal(s.src.Snapshot())
		if err != nil {
			continue
		}
		select {
		case s.broadcast <- data:
		default:
			// drop if channel full
		}
	}
}

func (c *websocketClient) readPump() {
	defer func() {
		c.server.removeClient(c)
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
	}
}

func (c *websocketClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
