package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"itemconverter.ai/internal/convert/inventory"
	"itemconverter.ai/internal/protocol"
)

// Run drives the session until ctx is done or Stop is called. Requests are
// queued as they arrive and applied in order on the next tick.
func (s *Session) Run(ctx context.Context) error {
	interval := time.Second / time.Duration(s.cfg.TickRateHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var pending []Envelope
	var pendingLeaves []string

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.stop:
			return nil
		case req := <-s.join:
			s.handleJoin(req)
		case id := <-s.leave:
			pendingLeaves = append(pendingLeaves, id)
		case entry := <-s.reloaded:
			s.broadcastReload(entry)
		case env := <-s.inbox:
			pending = append(pending, env)
		case <-ticker.C:
			s.step(ctx, pending, pendingLeaves)
			pending = pending[:0]
			pendingLeaves = pendingLeaves[:0]
		}
	}
}

// step applies one tick: queued requests first, then leaves.
func (s *Session) step(ctx context.Context, envs []Envelope, leaves []string) {
	s.tick.Add(1)
	for _, env := range envs {
		s.apply(ctx, env)
	}
	for _, id := range leaves {
		s.handleLeave(id)
	}
}

func (s *Session) handleJoin(req JoinRequest) {
	n := s.nextPlayer.Add(1)
	p := &Player{
		ID:       fmt.Sprintf("P%06d", n),
		Name:     req.Name,
		Creative: req.Creative && s.creativeAllowed(req.Name),
		Network:  req.Network,
		Inv:      inventory.New(s.cfg.InventorySlots, s.cats.MaxStackSize),
		out:      req.Out,
	}
	if req.Creative && !p.Creative {
		s.deps.Logger.Printf("WARN join: %s name=%q claimed creative mode without permission", p.ID, p.Name)
	}
	for _, st := range s.cfg.StarterKit {
		if left := p.Inv.Add(st); !left.IsEmpty() {
			p.Drop(left)
		}
	}
	s.players[p.ID] = p
	playersOnline.Set(float64(len(s.players)))
	s.deps.Logger.Printf("join: %s name=%q creative=%v network=%q", p.ID, p.Name, p.Creative, p.Network)

	g := s.graphs.Load()
	resp := JoinResponse{
		Welcome: protocol.WelcomeMsg{
			Type:            protocol.TypeWelcome,
			ProtocolVersion: protocol.Version,
			SessionID:       s.id,
			PlayerID:        p.ID,
			TickRateHz:      s.cfg.TickRateHz,
			InventorySlots:  s.cfg.InventorySlots,
			Catalogs: protocol.CatalogDigests{
				ItemPalette:     protocol.DigestRef{Digest: s.cats.Items.PaletteDigest, Count: len(s.cats.Items.Palette)},
				RecipesDigest:   s.cats.Recipes.Digest,
				RulesGeneration: g.Generation(),
			},
		},
		Catalog: s.catalogMsg(),
	}
	if req.Resp != nil {
		req.Resp <- resp
	}
}

func (s *Session) catalogMsg() protocol.CatalogMsg {
	msg := protocol.CatalogMsg{
		Type:            protocol.TypeCatalog,
		ProtocolVersion: protocol.Version,
		Digest:          s.cats.Items.DefsDigest,
		Items:           make([]protocol.ItemRef, 0, len(s.cats.Items.Palette)),
	}
	for _, id := range s.cats.Items.Palette {
		def := s.cats.Items.Defs[id]
		msg.Items = append(msg.Items, protocol.ItemRef{
			ID:       id,
			Kind:     def.Kind,
			MaxStack: s.cats.MaxStackSize(itemKey(id)),
			Tags:     def.Tags,
		})
	}
	return msg
}

func (s *Session) handleLeave(id string) {
	if _, ok := s.players[id]; !ok {
		return
	}
	delete(s.players, id)
	playersOnline.Set(float64(len(s.players)))
	s.deps.Logger.Printf("leave: %s", id)
}

func (s *Session) broadcastReload(e ReloadEntry) {
	msg := protocol.RulesReloadedMsg{
		Type:            protocol.TypeRulesReloaded,
		ProtocolVersion: protocol.Version,
		Generation:      e.Generation,
		Rules:           e.Rules,
		Vertices:        e.Vertices,
		Edges:           e.Edges,
	}
	for _, p := range s.players {
		s.send(p, msg)
	}
}

// send never blocks the loop: a full client queue loses the message.
func (s *Session) send(p *Player, v any) {
	if p == nil || p.out == nil {
		return
	}
	b, err := json.Marshal(v)
	if err != nil {
		s.deps.Logger.Printf("encode for %s: %v", p.ID, err)
		return
	}
	select {
	case p.out <- b:
	default:
		s.deps.Logger.Printf("client %s queue full; dropped message", p.ID)
	}
}
