package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/subosito/gotenv"
	"go.uber.org/zap"

	"github.com/satriahrh/backbone/domain"
	"github.com/satriahrh/backbone/utils/log"
)

const (
	defaultServerURL = "ws://localhost:8080/ws"
	writeWait        = 5 * time.Second
)

type envelope struct {
	Type string `json:"type"`
	Data struct {
		State   *domain.SessionState `json:"state"`
		Index   int                  `json:"index"`
		Turn    *domain.Turn         `json:"turn"`
		Pending bool                 `json:"pending"`
		Message string               `json:"message"`
	} `json:"data"`
}

func main() {
	_ = gotenv.Load()

	serverURL := os.Getenv("COACH_WS_URL")
	if serverURL == "" {
		serverURL = defaultServerURL
	}

	conn, _, err := websocket.DefaultDialer.Dial(serverURL, nil)
	if err != nil {
		log.With().Fatal("Failed to connect to server", zap.String("url", serverURL), zap.Error(err))
	}
	defer conn.Close()

	r := &renderer{out: os.Stdout}
	go func() {
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				log.With().Debug("Connection closed", zap.Error(err))
				os.Exit(0)
			}
			r.render(data)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		closeConn(conn)
		os.Exit(0)
	}()

	scanner := bufio.NewScanner(os.Stdin)
	fmt.Println("Say something... (type 'exit' to quit)")
	for scanner.Scan() {
		text := scanner.Text()
		if strings.TrimSpace(text) == "exit" {
			break
		}
		if err := submit(conn, text); err != nil {
			log.With().Error("Error sending message", zap.Error(err))
			break
		}
	}
	closeConn(conn)
}

func submit(conn *websocket.Conn, text string) error {
	return conn.WriteJSON(map[string]interface{}{
		"type": "submit",
		"data": map[string]string{"text": text},
	})
}

// closeConn may run alongside submit; WriteControl is safe for that.
func closeConn(conn *websocket.Conn) {
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait))
	conn.Close()
}

// renderer prints the transcript. next is the index of the first turn not
// yet shown; events for earlier turns are replays of the snapshot.
type renderer struct {
	out  io.Writer
	next int
}

func (r *renderer) render(data []byte) {
	var msg envelope
	if err := json.Unmarshal(data, &msg); err != nil {
		fmt.Fprintf(r.out, "? %s\n", data)
		return
	}

	switch msg.Type {
	case "snapshot":
		if msg.Data.State == nil {
			return
		}
		transcript := msg.Data.State.Transcript
		for ; r.next < len(transcript); r.next++ {
			r.printTurn(transcript[r.next])
		}
	case string(domain.TurnAppendedEvent):
		if msg.Data.Turn == nil || msg.Data.Index < r.next {
			return
		}
		r.next = msg.Data.Index + 1
		// The user already sees what they typed.
		if msg.Data.Turn.Role != domain.UserRole {
			r.printTurn(*msg.Data.Turn)
		}
	case string(domain.PendingChangedEvent):
		if msg.Data.Pending {
			fmt.Fprintln(r.out, "Sending...")
		}
	case "error":
		fmt.Fprintf(r.out, "! %s\n", msg.Data.Message)
	}
}

func (r *renderer) printTurn(turn domain.Turn) {
	label := "System"
	switch turn.Role {
	case domain.UserRole:
		label = "You"
	case domain.AssistantRole:
		label = "Coach"
	}
	fmt.Fprintf(r.out, "%s: %s\n\n", label, turn.Content)
}
