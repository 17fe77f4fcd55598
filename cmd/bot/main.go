package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"itemconverter.ai/internal/convert/item"
	"itemconverter.ai/internal/protocol"
)

func main() {
	var (
		url      = flag.String("url", "ws://localhost:8080/v1/ws", "ws url")
		name     = flag.String("name", "bot", "player name")
		token    = flag.String("token", "", "HELLO auth token")
		creative = flag.Bool("creative", false, "join in creative mode")
		network  = flag.String("network", "", "storage grid network to attach to")

		source = flag.String("source", protocol.SourceInventory, "source kind: INVENTORY, CREATIVE or GRID")
		slot   = flag.Int("slot", 0, "inventory slot for INVENTORY sources")
		from   = flag.String("from", "", "source item id (required for CREATIVE and GRID)")
		to     = flag.String("to", "", "target item id")
		count  = flag.Int64("count", 1, "source units per request (-1 converts a full stack)")
		policy = flag.String("policy", "REPLACE_IN_PLACE", "REPLACE_IN_PLACE, TO_STORAGE or DROP")
		every  = flag.Duration("every", 2*time.Second, "interval between requests")
		n      = flag.Int("n", 0, "number of requests (0 runs until interrupted)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[bot] ", log.LstdFlags|log.Lmicroseconds)
	if strings.TrimSpace(*to) == "" {
		logger.Fatalf("-to is required")
	}
	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		PlayerName:      *name,
		Creative:        *creative,
		Network:         *network,
	}
	if *token != "" {
		hello.Auth = &protocol.HelloAuth{Token: *token}
	}
	if err := conn.WriteJSON(hello); err != nil {
		logger.Fatalf("send HELLO: %v", err)
	}

	req := protocol.ConvertMsg{
		Type:            protocol.TypeConvert,
		ProtocolVersion: protocol.Version,
		Source:          protocol.SourceRef{Kind: strings.ToUpper(*source), Slot: *slot},
		Target:          item.Spec{Item: *to},
		Count:           *count,
		Policy:          *policy,
	}
	if *from != "" {
		req.Source.Item = &item.Spec{Item: *from}
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		read(conn, logger)
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)

	if *from != "" {
		_ = conn.WriteJSON(protocol.TargetsQueryMsg{
			Type:            protocol.TypeTargetsQuery,
			ProtocolVersion: protocol.Version,
			Source:          item.Spec{Item: *from},
		})
	}

	ticker := time.NewTicker(*every)
	defer ticker.Stop()
	for sent := 0; *n == 0 || sent < *n; {
		select {
		case <-stop:
			return
		case <-done:
			return
		case <-ticker.C:
			req.RequestID = fmt.Sprintf("%s-%d", *name, sent)
			if err := conn.WriteJSON(req); err != nil {
				logger.Printf("send CONVERT: %v", err)
				return
			}
			sent++
		}
	}
	// Leave time for the last result.
	select {
	case <-done:
	case <-stop:
	case <-time.After(*every):
	}
}

func read(conn *websocket.Conn, logger *log.Logger) {
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil {
			continue
		}
		switch base.Type {
		case protocol.TypeWelcome:
			var w protocol.WelcomeMsg
			if err := json.Unmarshal(msg, &w); err != nil {
				continue
			}
			logger.Printf("WELCOME player_id=%s tick_rate=%d rules_generation=%d", w.PlayerID, w.TickRateHz, w.Catalogs.RulesGeneration)

		case protocol.TypeTargets:
			var t protocol.TargetsMsg
			if err := json.Unmarshal(msg, &t); err != nil {
				continue
			}
			for _, tr := range t.Targets {
				logger.Printf("TARGET %s: %d -> %d %s (rule %s)", t.Source.Item, tr.Consumes, tr.Item.Count, tr.Item.Item, tr.Rule)
			}

		case protocol.TypeConvertResult:
			var r protocol.ConvertResultMsg
			if err := json.Unmarshal(msg, &r); err != nil {
				continue
			}
			if !r.OK {
				logger.Printf("RESULT %s failed code=%s %s", r.RequestID, r.Code, r.Message)
				continue
			}
			logger.Printf("RESULT %s consumed=%d produced=%d %s ratio=%s route=%s",
				r.RequestID, r.Consumed, r.Produced.Count, r.Produced.Item, r.Ratio, strings.Join(r.Route, " > "))

		case protocol.TypeSound:
			var s protocol.SoundMsg
			if err := json.Unmarshal(msg, &s); err == nil {
				logger.Printf("SOUND %s pitch=%.2f volume=%.2f", s.Sound, s.Pitch, s.Volume)
			}

		case protocol.TypeRulesReloaded:
			var rr protocol.RulesReloadedMsg
			if err := json.Unmarshal(msg, &rr); err == nil {
				logger.Printf("RULES_RELOADED generation=%d rules=%d edges=%d", rr.Generation, rr.Rules, rr.Edges)
			}
		}
	}
}
