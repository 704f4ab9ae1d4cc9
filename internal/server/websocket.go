package server

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/net/netutil"

	"trickle-sim/internal/clock"
	"trickle-sim/internal/commands"
	"trickle-sim/internal/eventBus"
	"trickle-sim/internal/mesh"
)

// Define a WebSocket upgrader.
var upgrader = websocket.Upgrader{
	// Allow any origin for simplicity. Adjust for production use.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsHandler upgrades the connection to WebSocket and pushes events from the EventBus.
func wsHandler(eb *eventBus.EventBus, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("Upgrade error: %v", err)
		return
	}
	defer conn.Close()

	eventCh := eb.Subscribe()
	defer eb.Unsubscribe(eventCh)

	// The client never sends anything; reading only notices it going away.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-gone:
			return
		case <-r.Context().Done():
			return
		case event := <-eventCh:
			conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteJSON(event); err != nil {
				log.Printf("Write error: %v", err)
				return
			}
		}
	}
}

// NewMux registers the websocket stream and the node API.
func NewMux(eb *eventBus.EventBus, network mesh.INetwork, clk clock.Clock) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		wsHandler(eb, w, r)
	})

	mux.HandleFunc("/nodeAPI/nodes", commands.NodesHandler(network))
	mux.HandleFunc("/nodeAPI/press", commands.PressHandler(network))
	mux.HandleFunc("/nodeAPI/setValue", commands.SetValueHandler(network))
	mux.HandleFunc("/nodeAPI/move", commands.MoveNodeHandler(network, eb, clk))
	mux.HandleFunc("/nodeAPI/remove", commands.RemoveNodeHandler(network))
	return mux
}

// StartServer serves the HTTP surface on addr until ctx is done. At most
// maxConns connections are accepted at once.
func StartServer(ctx context.Context, addr string, maxConns int, eb *eventBus.EventBus, network mesh.INetwork, clk clock.Clock) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return Serve(ctx, ln, maxConns, eb, network, clk)
}

func Serve(ctx context.Context, ln net.Listener, maxConns int, eb *eventBus.EventBus, network mesh.INetwork, clk clock.Clock) error {
	if maxConns > 0 {
		ln = netutil.LimitListener(ln, maxConns)
	}
	srv := &http.Server{
		Handler:           NewMux(eb, network, clk),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Printf("Server started on %s", ln.Addr())
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
