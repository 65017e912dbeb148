package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"time"
)

// ============================================================================
// hdapsctl - Command-line IPC Client
// ============================================================================
// Sends control requests to a running hdapsview over its Unix socket.
//
// Usage:
//   hdapsctl quit
//   hdapsctl fullscreen
//   hdapsctl status
//
// Options:
//   -socket PATH    Unix domain socket path (default: /tmp/hdapsview.sock)
// ============================================================================

const defaultSocket = "/tmp/hdapsview.sock"

// request mirrors the viewer's line-delimited JSON envelope.
type request struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type rotation struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// state is the subset of the viewer's snapshot printed by "status".
type state struct {
	Baseline   rotation  `json:"baseline"`
	Rotation   rotation  `json:"rotation"`
	LastOffset rotation  `json:"last_offset"`
	LastSample time.Time `json:"last_sample"`
	Fullscreen bool      `json:"fullscreen"`
	Samples    uint64    `json:"samples"`
	Redraws    uint64    `json:"redraws"`
}

// response is the viewer's reply.
type response struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
	State  *state `json:"state,omitempty"`
}

const ioTimeout = 3 * time.Second

func main() {
	socketPath := defaultSocket

	args := os.Args[1:]
	if len(args) > 0 && (args[0] == "-socket" || args[0] == "--socket") {
		if len(args) < 2 {
			fmt.Fprintf(os.Stderr, "error: -socket requires an argument\n")
			os.Exit(1)
		}
		socketPath = args[1]
		args = args[2:]
	}

	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	var req request
	switch args[0] {
	case "quit", "q":
		req = request{Type: "quit", Data: json.RawMessage(`{"reason":"hdapsctl"}`)}

	case "fullscreen", "f", "toggle-fullscreen":
		req = request{Type: "toggle_fullscreen"}

	case "status":
		req = request{Type: "status"}

	case "help", "-h", "--help":
		printUsage()
		os.Exit(0)

	default:
		fmt.Fprintf(os.Stderr, "error: unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}

	resp, err := send(socketPath, req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if resp.State != nil {
		printState(resp.State)
		return
	}
	fmt.Println("ok")
}

func send(socketPath string, req request) (response, error) {
	conn, err := net.DialTimeout("unix", socketPath, ioTimeout)
	if err != nil {
		return response{}, fmt.Errorf("connect to %s: %w", socketPath, err)
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(ioTimeout))

	data, err := json.Marshal(req)
	if err != nil {
		return response{}, fmt.Errorf("marshal request: %w", err)
	}
	if _, err := fmt.Fprintf(conn, "%s\n", data); err != nil {
		return response{}, fmt.Errorf("send request: %w", err)
	}

	line, err := bufio.NewReader(conn).ReadBytes('\n')
	if err != nil {
		return response{}, fmt.Errorf("read response: %w", err)
	}

	var resp response
	if err := json.Unmarshal(line, &resp); err != nil {
		return response{}, fmt.Errorf("decode response: %w", err)
	}
	if resp.Status != "ok" {
		return response{}, errors.New(resp.Error)
	}
	return resp, nil
}

func printState(s *state) {
	fmt.Printf("rotation:    x=%d y=%d\n", s.Rotation.X, s.Rotation.Y)
	fmt.Printf("last offset: x=%d y=%d\n", s.LastOffset.X, s.LastOffset.Y)
	fmt.Printf("rest:        x=%d y=%d\n", s.Baseline.X, s.Baseline.Y)
	fmt.Printf("fullscreen:  %v\n", s.Fullscreen)
	fmt.Printf("samples:     %d\n", s.Samples)
	fmt.Printf("redraws:     %d\n", s.Redraws)
	if !s.LastSample.IsZero() {
		fmt.Printf("last sample: %s\n", s.LastSample.Format(time.RFC3339Nano))
	}
}

func printUsage() {
	fmt.Println("hdapsctl - control a running hdapsview")
	fmt.Println()
	fmt.Println("USAGE:")
	fmt.Println("  hdapsctl [-socket PATH] COMMAND")
	fmt.Println()
	fmt.Println("COMMANDS:")
	fmt.Println("  quit          stop the viewer")
	fmt.Println("  fullscreen    toggle fullscreen")
	fmt.Println("  status        print the current rotation and counters")
	fmt.Println()
	fmt.Println("OPTIONS:")
	fmt.Printf("  -socket PATH  Unix domain socket path (default %q)\n", defaultSocket)
}
