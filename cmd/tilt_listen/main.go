package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/url"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
)

// envelope mirrors the viewer's websocket message format.
type envelope struct {
	Type string          `json:"type"`
	Ts   time.Time       `json:"ts"`
	Data json.RawMessage `json:"data"`
}

type rotationData struct {
	X       int `json:"x"`
	Y       int `json:"y"`
	OffsetX int `json:"offset_x"`
	OffsetY int `json:"offset_y"`
}

type initData struct {
	Baseline struct {
		X int `json:"x"`
		Y int `json:"y"`
	} `json:"baseline"`
	Rotation struct {
		X int `json:"x"`
		Y int `json:"y"`
	} `json:"rotation"`
	Fullscreen bool   `json:"fullscreen"`
	Samples    uint64 `json:"samples"`
}

type shutdownData struct {
	Reason string `json:"reason"`
}

func main() {
	var (
		wsURL = flag.String("ws", "ws://127.0.0.1:8091/ws", "hdapsview websocket URL")
		raw   = flag.Bool("raw", false, "Print raw JSON frames")
	)
	flag.Parse()

	u, err := url.Parse(*wsURL)
	if err != nil {
		log.Fatalf("invalid websocket URL: %v", err)
	}

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)

	d := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}

	log.Printf("connecting to %s...", u.String())
	conn, _, err := d.Dial(u.String(), nil)
	if err != nil {
		log.Fatalf("failed to connect: %v", err)
	}
	defer conn.Close()

	log.Printf("connected! (press Ctrl+C to exit)")

	// Pong replies and the close frame share the connection's writer.
	var writeMu sync.Mutex
	conn.SetPingHandler(func(appData string) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		return conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(5*time.Second))
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			messageType, message, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Printf("websocket error: %v", err)
				}
				return
			}
			if messageType != websocket.TextMessage {
				continue
			}
			if *raw {
				fmt.Println(string(message))
				continue
			}
			if stop := handleMessage(message); stop {
				return
			}
		}
	}()

	select {
	case <-sigc:
		log.Printf("shutting down...")
		writeMu.Lock()
		err := conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		writeMu.Unlock()
		if err != nil {
			log.Printf("error closing connection: %v", err)
		}
	case <-done:
		log.Printf("connection closed")
	}
}

// handleMessage prints one server message and reports whether the server
// announced shutdown.
func handleMessage(message []byte) bool {
	var env envelope
	if err := json.Unmarshal(message, &env); err != nil {
		fmt.Printf("[TEXT] %s\n", string(message))
		return false
	}

	ts := env.Ts.Local().Format("15:04:05.000")

	switch env.Type {
	case "state_init":
		var d initData
		if err := json.Unmarshal(env.Data, &d); err != nil {
			log.Printf("bad state_init: %v", err)
			return false
		}
		fmt.Printf("%s [INIT] rest=(%d,%d) rotation=(%d,%d) fullscreen=%v samples=%d\n",
			ts, d.Baseline.X, d.Baseline.Y, d.Rotation.X, d.Rotation.Y, d.Fullscreen, d.Samples)

	case "rotation_changed":
		var d rotationData
		if err := json.Unmarshal(env.Data, &d); err != nil {
			log.Printf("bad rotation_changed: %v", err)
			return false
		}
		fmt.Printf("%s [ROTATION] x=%d y=%d (offset %d,%d)\n", ts, d.X, d.Y, d.OffsetX, d.OffsetY)

	case "shutdown":
		var d shutdownData
		_ = json.Unmarshal(env.Data, &d)
		fmt.Printf("%s [SHUTDOWN] %s\n", ts, d.Reason)
		return true

	default:
		fmt.Printf("%s [%s] %s\n", ts, env.Type, string(env.Data))
	}
	return false
}
