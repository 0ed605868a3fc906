package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// The frontend is served from the same origin; cross-origin pages get
	// the default origin check.
}

// clientEvent is one inbound frame on the realtime channel.
type clientEvent struct {
	Type        string `json:"type"`
	Text        string `json:"text,omitempty"`
	IsVoiceMode bool   `json:"isVoiceMode,omitempty"`
	Answer      string `json:"answer,omitempty"`
}

// serverEvent is one outbound frame on the realtime channel.
type serverEvent struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
	URL  string `json:"url,omitempty"`
}

// wsOutlet delivers server events over one websocket connection. gorilla
// connections allow a single concurrent writer, hence the mutex.
type wsOutlet struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (o *wsOutlet) send(ev serverEvent) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.conn.WriteJSON(ev)
}

func (o *wsOutlet) SendText(text string) error {
	return o.send(serverEvent{Type: "message", Text: text})
}

func (o *wsOutlet) SendAudio(url string) error {
	return o.send(serverEvent{Type: "audio", URL: url})
}

// handleWS upgrades the connection and runs its read loop. The session
// lives exactly as long as the connection.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("server: websocket upgrade failed", "remote", r.RemoteAddr, "err", err)
		return
	}

	id := uuid.NewString()
	sess, err := s.manager.Create(id, &wsOutlet{conn: conn})
	if err != nil {
		slog.Error("server: session create failed", "id", id, "err", err)
		conn.Close()
		return
	}

	defer func() {
		s.manager.Destroy(id)
		conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Warn("server: websocket read failed", "session", id, "err", err)
			}
			return
		}

		var ev clientEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			slog.Debug("server: malformed client event", "session", id, "err", err)
			continue
		}

		switch ev.Type {
		case "message":
			s.dispatcher.Enqueue(sess, ev.Text)
		case "mode":
			sess.SetVoiceMode(ev.IsVoiceMode)
		case "audio-ended":
			s.dispatcher.OnPlaybackEnded(sess)
		case "confirmation":
			s.dispatcher.HandleConfirmation(sess, ev.Answer)
		default:
			slog.Debug("server: unknown client event", "session", id, "type", ev.Type)
		}
	}
}
