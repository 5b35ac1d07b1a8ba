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

// envelope is the cecpad state stream frame: {type, ts, data}.
type envelope struct {
	Type string          `json:"type"`
	Ts   *time.Time      `json:"ts,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

func main() {
	var (
		wsURL = flag.String("ws", "ws://127.0.0.1:3000/ws", "cecpad state stream URL")
		raw   = flag.Bool("raw", false, "Print frames as received")
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

	// Mutex to protect concurrent writes to websocket
	var writeMu sync.Mutex

	// The daemon pings every 20s; answer pongs and keep the deadline fresh.
	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPingHandler(func(data string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		writeMu.Lock()
		defer writeMu.Unlock()
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(5*time.Second))
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			messageType, message, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
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
			fmt.Println(formatFrame(message))
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

// formatFrame renders one state stream frame as a single human-readable line.
// Frames it doesn't understand are returned as-is.
func formatFrame(message []byte) string {
	var env envelope
	if err := json.Unmarshal(message, &env); err != nil {
		return "[TEXT] " + string(message)
	}

	var data map[string]any
	_ = json.Unmarshal(env.Data, &data)
	str := func(k string) string {
		s, _ := data[k].(string)
		return s
	}

	switch env.Type {
	case "state_init":
		pretty, _ := json.MarshalIndent(data, "", "  ")
		return "[STATE]\n" + string(pretty)

	case "key":
		action := "press"
		if rel, _ := data["release"].(bool); rel {
			action = "release"
		}
		return fmt.Sprintf("[KEY] %s %s -> %s", str("code"), action, str("target"))

	case "quota_changed":
		if pct, ok := data["percent"].(float64); ok {
			return fmt.Sprintf("[CPU] %s (%d%%)", str("state"), int(pct))
		}
		return fmt.Sprintf("[CPU] %s", str("state"))

	case "tv_power_changed":
		return fmt.Sprintf("[TV] %s", str("power"))

	case "control":
		line := fmt.Sprintf("[CONTROL] %s via %s", str("action"), str("origin"))
		if e := str("error"); e != "" {
			line += ": " + e
		}
		return line

	default:
		return "[" + env.Type + "] " + string(env.Data)
	}
}
