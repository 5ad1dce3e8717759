package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/chatsync/internal/model"
	"github.com/chatsync/internal/syncloop"
	"github.com/chatsync/internal/ws"
)

var (
	streamServer string
	streamEmail  string
)

var streamCmd = &cobra.Command{
	Use:   "stream",
	Short: "Open a session on a running API and chat over its WebSocket",
	Long: "Logs in on the API server by email and prints every snapshot pushed over /ws.\n" +
		"Lines typed on stdin are sent to the active conversation. Commands:\n" +
		"  /open <user-id>     open the direct conversation with a user\n" +
		"  /select <conv-id>   make a conversation active\n" +
		"  /status <status>    set presence (online, away, busy, offline)",
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := loadProfile()
		if err != nil {
			return err
		}
		email := streamEmail
		if email == "" {
			email = p.Email
		}
		if email == "" {
			return fmt.Errorf("no email: run `login` or pass --email")
		}
		server := streamServer
		if server == "" {
			server = p.Server
		} else if server != p.Server {
			p.Server = server
			if err := saveProfile(p); err != nil {
				return err
			}
		}
		if server == "" {
			server = "http://localhost:8080"
		}
		server = strings.TrimSuffix(server, "/")

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		api := &apiClient{base: server, http: &http.Client{Timeout: 15 * time.Second}}
		if err := api.login(ctx, email); err != nil {
			return err
		}
		defer func() {
			endCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := api.endSession(endCtx); err != nil {
				fmt.Fprintf(os.Stderr, "end session: %v\n", err)
			}
		}()

		wsURL, err := api.wsURL()
		if err != nil {
			return err
		}
		conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
			HTTPHeader: http.Header{sessionHeader: []string{api.sessionID}},
		})
		if err != nil {
			return fmt.Errorf("dial %s: %w", wsURL, err)
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")
		conn.SetReadLimit(1 << 22)

		var active atomic.Value
		active.Store("")
		go readCommands(ctx, conn, os.Stdin, func() string { return active.Load().(string) })

		r := newRenderer(os.Stdout)
		for {
			var msg struct {
				Type    ws.EventType    `json:"type"`
				Payload json.RawMessage `json:"payload"`
			}
			if err := wsjson.Read(ctx, conn, &msg); err != nil {
				if ctx.Err() != nil {
					fmt.Println()
					return nil
				}
				return fmt.Errorf("stream closed: %w", err)
			}
			switch msg.Type {
			case ws.EventSnapshot:
				var snap syncloop.Snapshot
				if err := json.Unmarshal(msg.Payload, &snap); err != nil {
					return fmt.Errorf("decode snapshot: %w", err)
				}
				active.Store(snap.ActiveConversation)
				r.render(snap)
			case ws.EventError:
				fmt.Fprintf(os.Stderr, "error: %s\n", strings.Trim(string(msg.Payload), `"`))
			}
		}
	},
}

func init() {
	streamCmd.Flags().StringVar(&streamServer, "server", "", "API base URL (default: profile server or http://localhost:8080)")
	streamCmd.Flags().StringVar(&streamEmail, "email", "", "email to log in with (default: profile email)")
}

// readCommands превращает строки stdin в команды WebSocket. Активный чат берётся из последнего снимка.
func readCommands(ctx context.Context, conn *websocket.Conn, in io.Reader, active func() string) {
	sc := bufio.NewScanner(in)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		msg, ok := parseCommand(line, active())
		if !ok {
			fmt.Fprintln(os.Stderr, "no active conversation: use /open or /select first")
			continue
		}
		if err := wsjson.Write(ctx, conn, msg); err != nil {
			return
		}
	}
}

// parseCommand разбирает строку ввода. ok=false, если текст некуда отправить.
func parseCommand(line, active string) (ws.IncomingMessage, bool) {
	if strings.HasPrefix(line, "/") {
		cmd, arg, _ := strings.Cut(strings.TrimPrefix(line, "/"), " ")
		arg = strings.TrimSpace(arg)
		switch cmd {
		case "open":
			return ws.IncomingMessage{Type: ws.EventOpenDirect, UserID: arg}, true
		case "select":
			return ws.IncomingMessage{Type: ws.EventSelectConversation, ConversationID: arg}, true
		case "status":
			return ws.IncomingMessage{Type: ws.EventSetPresence, Status: model.UserStatus(arg)}, true
		}
	}
	if active == "" {
		return ws.IncomingMessage{}, false
	}
	return ws.IncomingMessage{Type: ws.EventSendMessage, ConversationID: active, Content: line}, true
}

// sessionHeader совпадает с middleware.SessionHeader API.
const sessionHeader = "X-Session-Id"

type apiClient struct {
	base      string
	sessionID string
	http      *http.Client
}

func (c *apiClient) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.sessionID != "" {
		req.Header.Set(sessionHeader, c.sessionID)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return fmt.Errorf("%s %s: %d %s", method, path, resp.StatusCode, e.Error)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

// login открывает сессию на сервере и запоминает её токен.
func (c *apiClient) login(ctx context.Context, email string) error {
	var resp struct {
		User      model.User `json:"user"`
		SessionID string     `json:"session_id"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/auth/login", map[string]string{"email": email}, &resp); err != nil {
		return err
	}
	if resp.SessionID == "" {
		return fmt.Errorf("login: server returned no session")
	}
	c.sessionID = resp.SessionID
	return nil
}

func (c *apiClient) endSession(ctx context.Context) error {
	return c.do(ctx, http.MethodDelete, "/api/session", nil, nil)
}

func (c *apiClient) wsURL() (string, error) {
	u, err := url.Parse(c.base)
	if err != nil {
		return "", fmt.Errorf("bad server URL: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = "/ws"
	return u.String(), nil
}
