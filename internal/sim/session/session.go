// Package session is the serialized execution context: one goroutine owns
// every player inventory and processes conversion requests in arrival order.
package session

import (
	"io"
	"log"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"itemconverter.ai/internal/convert/exec"
	"itemconverter.ai/internal/convert/graph"
	"itemconverter.ai/internal/convert/inventory"
	"itemconverter.ai/internal/convert/item"
	"itemconverter.ai/internal/convert/paths"
	"itemconverter.ai/internal/convert/rulegen"
	"itemconverter.ai/internal/convert/rules"
	"itemconverter.ai/internal/protocol"
	"itemconverter.ai/internal/sim/catalogs"
)

type Config struct {
	TickRateHz     int
	InventorySlots int

	Bidirectional bool
	Duplicates    graph.DuplicatePolicy
	SpecialTags   []string
	Generators    []rulegen.Generator
	// RulesDir holds authored rule documents; empty means generated rules only.
	RulesDir string
	// StarterKit is added to every new player's inventory.
	StarterKit []item.Stack
	// CreativePlayers may join in creative mode. "*" admits everyone.
	CreativePlayers []string
	// MaxOutputStacks bounds the output of one conversion, in target stacks.
	MaxOutputStacks int64
}

// GridFunc returns the grid network with the given id.
type GridFunc func(network string) exec.Grid

// Deps are the optional collaborators of a session.
type Deps struct {
	Logger  *log.Logger
	Audit   exec.AuditSink
	Reloads ReloadLogger
	Grids   GridFunc
}

type JoinRequest struct {
	Name     string
	Creative bool
	Network  string
	Out      chan []byte
	Resp     chan JoinResponse
}

type JoinResponse struct {
	Welcome protocol.WelcomeMsg
	Catalog protocol.CatalogMsg
}

// Envelope carries one decoded client request. Exactly one field is set.
type Envelope struct {
	PlayerID string
	Convert  *protocol.ConvertMsg
	Target   *protocol.ConvertTargetMsg
	Query    *protocol.TargetsQueryMsg
}

// Player is a connected client and its inventory.
type Player struct {
	ID       string
	Name     string
	Creative bool
	Network  string
	Inv      *inventory.Slots
	// Drops collects stacks spilled into the world for this player.
	Drops []item.Stack

	out chan []byte
}

func (p *Player) Drop(s item.Stack) {
	if !s.IsEmpty() {
		p.Drops = append(p.Drops, s)
	}
}

type Session struct {
	id   string
	cfg  Config
	cats *catalogs.Catalogs
	deps Deps

	store    *rules.Store
	graphs   *graph.Holder
	resolver *paths.Resolver
	exec     *exec.Executor

	tick       atomic.Uint64
	nextPlayer atomic.Uint64
	reloadMu   sync.Mutex

	players map[string]*Player

	inbox    chan Envelope
	join     chan JoinRequest
	leave    chan string
	reloaded chan ReloadEntry
	stop     chan struct{}
	stopOnce sync.Once
}

func New(cfg Config, cats *catalogs.Catalogs, deps Deps) *Session {
	if cfg.TickRateHz <= 0 {
		cfg.TickRateHz = 20
	}
	if cfg.InventorySlots <= 0 {
		cfg.InventorySlots = 36
	}
	if deps.Logger == nil {
		deps.Logger = log.New(io.Discard, "", 0)
	}
	s := &Session{
		id:       uuid.NewString(),
		cfg:      cfg,
		cats:     cats,
		deps:     deps,
		store:    rules.NewStore(),
		graphs:   graph.NewHolder(nil),
		players:  map[string]*Player{},
		inbox:    make(chan Envelope, 1024),
		join:     make(chan JoinRequest, 64),
		leave:    make(chan string, 64),
		reloaded: make(chan ReloadEntry, 8),
		stop:     make(chan struct{}),
	}
	s.resolver = paths.New(s.graphs, cats, cfg.SpecialTags)
	s.exec = &exec.Executor{
		Resolver: s.resolver,
		Sizer:    cats,
		Sounds:   s,
		Audit:    deps.Audit,
		Logger:   deps.Logger,

		MaxStacks: cfg.MaxOutputStacks,
	}
	return s
}

func (s *Session) creativeAllowed(name string) bool {
	for _, n := range s.cfg.CreativePlayers {
		if n == "*" || n == name {
			return true
		}
	}
	return false
}

func (s *Session) Inbox() chan<- Envelope       { return s.inbox }
func (s *Session) Join() chan<- JoinRequest     { return s.join }
func (s *Session) Leave() chan<- string         { return s.leave }
func (s *Session) Resolver() *paths.Resolver    { return s.resolver }
func (s *Session) Graph() *graph.Graph          { return s.graphs.Load() }
func (s *Session) Rules() *rules.Set            { return s.store.Load() }
func (s *Session) TickRateHz() int              { return s.cfg.TickRateHz }
func (s *Session) CurrentTick() uint64          { return s.tick.Load() }
func (s *Session) Catalogs() *catalogs.Catalogs { return s.cats }

func (s *Session) Stop() { s.stopOnce.Do(func() { close(s.stop) }) }
