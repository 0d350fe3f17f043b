package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mama165/sdk-go/logs"
	"golang.org/x/sync/errgroup"
)

type loginResponse struct {
	Token string `json:"accessToken"`
	ID    string `json:"id"`
}

type frame struct {
	Op   string `json:"op"`
	Data any    `json:"data"`
}

type event struct {
	Name string `json:"event"`
}

type stress struct {
	baseURL string
	wsURL   string
	msgs    int
	log     *slog.Logger

	sent     atomic.Int64
	received atomic.Int64
}

func main() {
	baseURL := flag.String("base", "http://localhost:8080", "server base url")
	pairs := flag.Int("pairs", 50, "number of user pairs")
	msgs := flag.Int("msgs", 20, "messages per user")
	level := flag.String("log", "INFO", "log level")
	flag.Parse()

	s := &stress{
		baseURL: *baseURL,
		wsURL:   "ws" + (*baseURL)[len("http"):] + "/ws",
		msgs:    *msgs,
		log:     logs.GetLoggerFromString(*level),
	}
	if err := s.run(context.Background(), *pairs); err != nil {
		fmt.Fprintf(os.Stderr, "Load test failed: %v\n", err)
		os.Exit(1)
	}
}

func (s *stress) run(ctx context.Context, pairs int) error {
	s.log.Info("Starting stress test", "users", pairs*2, "messages_per_user", s.msgs)
	start := time.Now()

	g, ctx := errgroup.WithContext(ctx)
	for i := range pairs {
		g.Go(func() error { return s.runPair(ctx, i) })
	}
	err := g.Wait()

	s.log.Info("Load test complete",
		"sent", s.sent.Load(),
		"received", s.received.Load(),
		"elapsed", time.Since(start))
	return err
}

// runPair makes two users message each other directly.
func (s *stress) runPair(ctx context.Context, pairID int) error {
	a, err := s.authenticate(fmt.Sprintf("lt%da", pairID))
	if err != nil {
		return err
	}
	b, err := s.authenticate(fmt.Sprintf("lt%db", pairID))
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.chat(ctx, a, b.ID) })
	g.Go(func() error { return s.chat(ctx, b, a.ID) })
	return g.Wait()
}

// authenticate registers the user, ignoring conflicts, then logs in.
func (s *stress) authenticate(username string) (loginResponse, error) {
	creds := map[string]string{"username": username, "password": "password123"}
	if resp, err := s.postJSON("/register", creds); err == nil {
		_ = resp.Body.Close()
	}

	resp, err := s.postJSON("/login", creds)
	if err != nil {
		return loginResponse{}, fmt.Errorf("login %s: %w", username, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return loginResponse{}, fmt.Errorf("login %s: status %d", username, resp.StatusCode)
	}

	var data loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return loginResponse{}, fmt.Errorf("login %s: %w", username, err)
	}
	return data, nil
}

func (s *stress) chat(ctx context.Context, self loginResponse, peerID string) error {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, s.wsURL+"?token="+url.QueryEscape(self.Token), nil)
	if err != nil {
		return fmt.Errorf("ws connect %s: %w", self.ID, err)
	}
	_ = resp.Body.Close()
	defer conn.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var ev event
			if err := conn.ReadJSON(&ev); err != nil {
				return
			}
			if ev.Name == "ReceiveNewMessage" {
				s.received.Add(1)
			}
		}
	}()

	for i := range s.msgs {
		msg := frame{Op: "SendMessage", Data: map[string]any{
			"receiverId":  peerID,
			"content":     fmt.Sprintf("LoadTest Msg %d from %s", i, self.ID),
			"messageType": "text",
		}}
		if err := conn.WriteJSON(msg); err != nil {
			return fmt.Errorf("send from %s: %w", self.ID, err)
		}
		s.sent.Add(1)
		time.Sleep(10 * time.Millisecond)
	}

	// Give the echo and the peer's last frames time to arrive.
	time.Sleep(500 * time.Millisecond)
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	<-done
	s.log.Debug("Finished sending", "user_id", self.ID, "messages", s.msgs)
	return nil
}

func (s *stress) postJSON(endpoint string, data any) (*http.Response, error) {
	body, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return http.Post(s.baseURL+endpoint, "application/json", bytes.NewReader(body))
}
