package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/park285/connect4-server/internal/board"
	"github.com/park285/connect4-server/internal/bot"
	"github.com/park285/connect4-server/internal/c4client"
	"github.com/park285/connect4-server/pkg/c4dto"
)

func main() {
	apiURL := flag.String("api", envOr("C4_API_URL", "http://localhost:8081"), "read API base URL")
	wsURL := flag.String("ws", envOr("C4_WS_URL", "ws://localhost:8080/ws"), "websocket endpoint")
	name := flag.String("name", "c4check", "display name")
	depth := flag.Int("depth", 3, "search depth for our moves")
	flag.Parse()

	client := c4client.NewClient(*apiURL, c4client.WithTimeout(5*time.Second))
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	h, err := client.Health(ctx)
	if err != nil {
		log.Fatalf("/health error: %v", err)
	}
	log.Printf("/health ok: uptime=%ds active=%d waiting=%d", h.UptimeSeconds, h.ActiveSessions, h.WaitingPlayers)

	m, err := c4client.Dial(ctx, *wsURL, "", *name)
	if err != nil {
		log.Fatalf("ws dial error: %v", err)
	}
	defer m.Close()
	log.Printf("connected as %s", m.Identity())

	if err := m.Join(ctx, "vsBot"); err != nil {
		log.Fatalf("join error: %v", err)
	}

	engine := bot.NewEngine(*depth)
	choose := func(st *c4dto.PublicState) (int, error) {
		b, err := board.FromRows(st.Board)
		if err != nil {
			return 0, err
		}
		side := board.First
		if st.Turn == "second" {
			side = board.Second
		}
		return engine.ChooseColumn(b, side)
	}
	ended, err := m.PlayToEnd(ctx, choose, func(ev c4dto.Event) {
		fmt.Printf("%-16s %s\n", ev.Type, ev.Message)
	})
	if err != nil {
		log.Fatalf("match error: %v", err)
	}

	st, err := client.Session(ctx, ended.SessionID)
	if err != nil {
		log.Printf("snapshot lookup: %v", err)
		return
	}
	b, _ := board.FromRows(st.Board)
	fmt.Printf("\n%s\nfinal phase=%s outcome=%s moves=%d\n", b.String(), st.Phase, outcomeKind(st), len(st.Moves))
}

func outcomeKind(st *c4dto.PublicState) string {
	if st.Outcome == nil {
		return "-"
	}
	return st.Outcome.Kind
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
