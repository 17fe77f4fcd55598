package session

import (
	"fmt"
	"time"

	"itemconverter.ai/internal/convert/graph"
	"itemconverter.ai/internal/convert/rulegen"
	"itemconverter.ai/internal/convert/rules"
)

// ReloadEntry records one graph rebuild.
type ReloadEntry struct {
	Time            time.Time `json:"time"`
	Generation      uint64    `json:"generation"`
	RulesGeneration uint64    `json:"rules_generation"`
	Authored        int       `json:"authored"`
	Generated       int       `json:"generated"`
	Rules           int       `json:"rules"`
	Vertices        int       `json:"vertices"`
	Edges           int       `json:"edges"`
	Errors          []string  `json:"errors,omitempty"`
}

type ReloadLogger interface {
	WriteReload(entry ReloadEntry) error
}

// Sources is what a rule set is compiled from.
type Sources struct {
	Authored  []rules.Rule
	Generated map[string]rules.Rule
	// Bad lists rule documents that failed to load.
	Bad []error
}

// LoadSources reads authored rule documents from dir and runs every generator
// over src.
func LoadSources(dir string, gens []rulegen.Generator, src rulegen.Source) (Sources, error) {
	var out Sources
	if dir != "" {
		authored, bad, err := rules.LoadDir(dir)
		if err != nil {
			return out, fmt.Errorf("load rules: %w", err)
		}
		out.Authored, out.Bad = authored, bad
	}
	out.Generated = map[string]rules.Rule{}
	if src != nil {
		for _, g := range gens {
			for name, r := range g.Generate(src) {
				out.Generated[name] = r
			}
		}
	}
	return out, nil
}

// Merged is the ordered rule collection handed to the store.
func (s Sources) Merged() []rules.Rule { return rules.Merge(s.Authored, s.Generated) }

// Reload recompiles the rule set, rebuilds the graph and publishes it. On a
// load failure the current graph stays in place. Safe to call from any
// goroutine; connected players are told once the loop picks the entry up.
func (s *Session) Reload() (ReloadEntry, error) {
	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()

	src, err := LoadSources(s.cfg.RulesDir, s.cfg.Generators, s.cats)
	if err != nil {
		reloadFailures.Inc()
		s.deps.Logger.Printf("reload: %v", err)
		return ReloadEntry{}, err
	}
	for _, e := range src.Bad {
		s.deps.Logger.Printf("reload: skipped rule document: %v", e)
	}

	set, err := s.store.Replace(src.Merged())
	if err != nil {
		reloadFailures.Inc()
		s.deps.Logger.Printf("reload: %v", err)
		return ReloadEntry{}, err
	}
	g, errs := graph.Build(set, graph.Options{
		Bidirectional: s.cfg.Bidirectional,
		Duplicates:    s.cfg.Duplicates,
		Logger:        s.deps.Logger,
	})
	s.graphs.Swap(g)

	entry := ReloadEntry{
		Time:            time.Now().UTC(),
		Generation:      g.Generation(),
		RulesGeneration: set.Generation(),
		Authored:        len(src.Authored),
		Generated:       len(src.Generated),
		Rules:           set.Len(),
		Vertices:        g.VertexCount(),
		Edges:           g.EdgeCount(),
	}
	for _, e := range append(src.Bad, errs...) {
		entry.Errors = append(entry.Errors, e.Error())
	}
	s.deps.Logger.Printf("reload: generation=%d rules=%d (authored=%d generated=%d) vertices=%d edges=%d errors=%d",
		entry.Generation, entry.Rules, entry.Authored, entry.Generated, entry.Vertices, entry.Edges, len(entry.Errors))

	if s.deps.Reloads != nil {
		if err := s.deps.Reloads.WriteReload(entry); err != nil {
			s.deps.Logger.Printf("reload log: %v", err)
		}
	}
	select {
	case s.reloaded <- entry:
	default:
	}
	return entry, nil
}
