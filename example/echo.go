package main

import (
	"context"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/Zereker/framing"
)

type Server struct {
	connID int64

	sync.RWMutex
	pumps map[int64]*framing.Pump
}

func newHandler(connID int64) *Server {
	return &Server{connID: connID, pumps: make(map[int64]*framing.Pump)}
}

func (s *Server) Handle(conn *net.TCPConn) {
	connID := atomic.AddInt64(&s.connID, 1)

	errorOption := framing.OnErrorOption(func(err error) framing.ErrorAction {
		slog.Error("connection error", "error", err)
		return framing.Disconnect
	})

	// Echo
	onMessageOption := framing.OnMessageOption(func(payload []byte) error {
		pump := s.getPump(connID)
		return pump.Write(payload)
	})

	pump, err := framing.NewPump(conn, errorOption, onMessageOption)
	if err != nil {
		panic(err)
	}

	s.addPump(connID, pump)

	if err = pump.Run(context.Background()); err != nil {
		s.deletePump(connID)
	}
}

func (s *Server) addPump(connID int64, pump *framing.Pump) {
	s.Lock()
	defer s.Unlock()

	slog.Info("add new pump", "connID", connID, "addr", pump.Addr())
	s.pumps[connID] = pump
}

func (s *Server) deletePump(connID int64) {
	s.Lock()
	defer s.Unlock()

	delete(s.pumps, connID)
}

func (s *Server) getPump(connID int64) *framing.Pump {
	s.RLock()
	defer s.RUnlock()

	if pump, ok := s.pumps[connID]; ok {
		return pump
	}

	return nil
}

// runClient dials the echo server and round-trips a few messages using
// the future-based API.
func runClient(ctx context.Context, addr string) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		slog.Error("dial failed", "error", err)
		return
	}
	defer conn.Close()

	client := framing.NewConn(framing.NewNetTransport(conn))
	for _, text := range []string{"hello", "framing", "bye"} {
		sent, err := client.SendMessage([]byte(text)).Wait(ctx)
		if err != nil {
			slog.Error("send failed", "error", err)
			return
		}

		payload, err := client.ReceiveMessage().Wait(ctx)
		if err != nil {
			slog.Error("receive failed", "error", err)
			return
		}

		slog.Info("echo", "sent_bytes", sent, "payload", string(payload))
	}
}

func main() {
	addr, err := net.ResolveTCPAddr("tcp", "127.0.0.1:12345")
	if err != nil {
		panic(err)
	}

	server, err := framing.New(addr)
	if err != nil {
		slog.Error("failed to create server", "error", err)
		return
	}

	// Handle graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		slog.Info("shutting down server...")
		cancel()
	}()

	go runClient(ctx, addr.String())

	slog.Info("server start", "addr", addr.String())
	if err := server.Serve(ctx, newHandler(time.Now().Unix())); err != nil {
		slog.Error("server error", "error", err)
	}
}
