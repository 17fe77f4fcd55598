package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"itemconverter.ai/internal/convert/exec"
	"itemconverter.ai/internal/convert/item"
	"itemconverter.ai/internal/convert/paths"
	"itemconverter.ai/internal/convert/rules"
	"itemconverter.ai/internal/protocol"
)

func itemKey(id string) item.Key { return item.NewKey(id, "") }

func (s *Session) apply(ctx context.Context, env Envelope) {
	p := s.players[env.PlayerID]
	if p == nil {
		requestsDropped.Inc()
		s.deps.Logger.Printf("WARN request for unknown player %q dropped", env.PlayerID)
		return
	}
	switch {
	case env.Convert != nil:
		s.send(p, s.handleConvert(ctx, p, *env.Convert))
	case env.Target != nil:
		s.send(p, s.handleConvertTarget(ctx, p, *env.Target))
	case env.Query != nil:
		if msg, ok := s.handleTargetsQuery(p, *env.Query); ok {
			s.send(p, msg)
		}
	default:
		requestsDropped.Inc()
		s.deps.Logger.Printf("WARN empty request from %s dropped", p.ID)
	}
}

func requestID(id string) string {
	if id == "" {
		return uuid.NewString()
	}
	return id
}

func (s *Session) result(p *Player, id string, err error) protocol.ConvertResultMsg {
	msg := protocol.ConvertResultMsg{
		Type:            protocol.TypeConvertResult,
		ProtocolVersion: protocol.Version,
		RequestID:       id,
		OK:              err == nil,
		Code:            protocol.CodeFor(err),
		Inventory:       slotRefs(p),
	}
	// Insufficient quantity is a silent no-op for the player.
	if err != nil && !errors.Is(err, exec.ErrInsufficientQuantity) {
		msg.Message = err.Error()
	}
	return msg
}

func slotRefs(p *Player) []protocol.SlotRef {
	var out []protocol.SlotRef
	for i, st := range p.Inv.Stacks() {
		if st.IsEmpty() {
			continue
		}
		out = append(out, protocol.SlotRef{Slot: i, Stack: item.SpecOf(st)})
	}
	return out
}

func routeNames(r paths.Route) []string {
	out := []string{r.From.String()}
	for _, e := range r.Edges {
		out = append(out, e.To.String())
	}
	return out
}

func optionalKey(sp *item.Spec) (item.Key, error) {
	if sp == nil {
		return item.Key{}, nil
	}
	return sp.Key()
}

func (s *Session) backend(p *Player, src protocol.SourceRef) (exec.Backend, error) {
	key, err := optionalKey(src.Item)
	if err != nil {
		return nil, fmt.Errorf("%w: source: %v", exec.ErrInvalidRequest, err)
	}
	switch src.Kind {
	case protocol.SourceInventory, "":
		return &exec.InventoryBackend{Container: p.Inv, Slot: src.Slot, Inventory: p.Inv, Drops: p, Sizer: s.cats}, nil
	case protocol.SourceCreative:
		if !p.Creative {
			return nil, fmt.Errorf("%w: %s is not in creative mode", exec.ErrInvalidRequest, p.ID)
		}
		return &exec.CreativeBackend{Key: key, Inventory: p.Inv, Drops: p, Sizer: s.cats}, nil
	case protocol.SourceGrid:
		if p.Network == "" || s.deps.Grids == nil {
			return nil, fmt.Errorf("%w: %s is not attached to a grid", exec.ErrInvalidRequest, p.ID)
		}
		return &exec.GridBackend{
			Grid:      s.deps.Grids(p.Network),
			Key:       key,
			Inventory: p.Inv,
			Drops:     p,
			Sizer:     s.cats,
			OnError:   func(err error) { s.deps.Logger.Printf("grid %s: %v", p.Network, err) },
		}, nil
	default:
		return nil, fmt.Errorf("%w: unknown source kind %q", exec.ErrInvalidRequest, src.Kind)
	}
}

func (s *Session) handleConvert(ctx context.Context, p *Player, m protocol.ConvertMsg) protocol.ConvertResultMsg {
	id := requestID(m.RequestID)
	target, err := m.Target.Key()
	if err != nil {
		return s.reject(p, id, fmt.Errorf("%w: target: %v", exec.ErrInvalidRequest, err))
	}
	policy, err := exec.ParsePolicy(m.Policy)
	if err != nil {
		return s.reject(p, id, err)
	}
	b, err := s.backend(p, m.Source)
	if err != nil {
		return s.reject(p, id, err)
	}
	req := exec.Request{
		ID:        id,
		Requester: p.ID,
		Target:    target,
		Quantity:  m.Count,
		Policy:    policy,
	}
	if m.Count == protocol.CountAll {
		req.Quantity = exec.All
	}
	if m.Source.Kind == protocol.SourceInventory || m.Source.Kind == "" {
		req.Expect, _ = optionalKey(m.Source.Item)
	}

	res, err := s.exec.Convert(ctx, b, req)
	msg := s.result(p, id, err)
	if err != nil {
		return msg
	}
	produced := item.SpecOf(res.Produced)
	msg.Consumed = res.Units
	msg.Produced = &produced
	msg.Ratio = res.Route.Ratio.String()
	msg.Route = routeNames(res.Route)
	return msg
}

// reject answers requests that never reached the executor.
func (s *Session) reject(p *Player, id string, err error) protocol.ConvertResultMsg {
	requestsDropped.Inc()
	s.deps.Logger.Printf("WARN dropped request %s from %s: %v", id, p.ID, err)
	return s.result(p, id, err)
}

func (s *Session) handleConvertTarget(ctx context.Context, p *Player, m protocol.ConvertTargetMsg) protocol.ConvertResultMsg {
	id := requestID(m.RequestID)
	target, err := m.Target.Key()
	if err != nil {
		return s.reject(p, id, fmt.Errorf("%w: target: %v", exec.ErrInvalidRequest, err))
	}
	res, err := s.exec.Gather(ctx, p.Inv, p, exec.GatherRequest{
		ID:        id,
		Requester: p.ID,
		Target:    target,
		Bulk:      m.Bulk,
	})
	msg := s.result(p, id, err)
	if err != nil {
		return msg
	}
	produced := item.SpecOf(res.Produced)
	msg.Consumed = res.Units
	msg.Produced = &produced
	if n := len(res.Routes); n > 0 {
		last := res.Routes[n-1]
		msg.Ratio = last.Ratio.String()
		msg.Route = routeNames(last)
	}
	return msg
}

func (s *Session) handleTargetsQuery(p *Player, m protocol.TargetsQueryMsg) (protocol.TargetsMsg, bool) {
	id := requestID(m.RequestID)
	src, err := m.Source.Key()
	if err != nil {
		requestsDropped.Inc()
		s.deps.Logger.Printf("WARN dropped targets query %s from %s: %v", id, p.ID, err)
		return protocol.TargetsMsg{}, false
	}
	g := s.resolver.Snapshot()
	msg := protocol.TargetsMsg{
		Type:            protocol.TypeTargets,
		ProtocolVersion: protocol.Version,
		RequestID:       id,
		Source:          item.SpecOf(item.NewStack(src, 1)),
		Generation:      g.Generation(),
		Targets:         []protocol.TargetRef{},
	}
	for _, t := range s.resolver.Direct(g, src) {
		msg.Targets = append(msg.Targets, protocol.TargetRef{
			Item:     item.SpecOf(item.NewStack(t.Edge.To, t.Edge.Ratio.Num)),
			Consumes: t.Edge.Ratio.Den,
			Rule:     t.Edge.Rule,
			Special:  t.Special,
		})
	}
	return msg, true
}

// Play sends a rule's sound to the requesting player.
func (s *Session) Play(playerID string, cue rules.Cue) {
	if cue.Sound == "" {
		return
	}
	s.send(s.players[playerID], protocol.SoundMsg{
		Type:            protocol.TypeSound,
		ProtocolVersion: protocol.Version,
		Sound:           cue.Sound,
		Pitch:           cue.Pitch,
		Volume:          cue.Volume,
	})
}
