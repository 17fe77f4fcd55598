package tuning

import (
	"os"
	"path/filepath"
	"testing"

	"itemconverter.ai/internal/convert/graph"
	"itemconverter.ai/internal/convert/item"
)

func TestLoad_ConverterYAML(t *testing.T) {
	cfg, err := Load("../../../configs/converter.yaml")
	if err != nil {
		t.Fatalf("load converter.yaml: %v", err)
	}
	if cfg.TickRateHz <= 0 {
		t.Fatalf("tick_rate_hz should be positive, got %d", cfg.TickRateHz)
	}
	if len(cfg.Generators) == 0 {
		t.Fatalf("expected generators from config")
	}
	if cfg.RulesDir == "" {
		t.Fatalf("expected rules_dir")
	}
	if len(cfg.CreativePlayers) == 0 || cfg.MaxOutputStacks != 64 {
		t.Fatalf("creative_players=%v max_output_stacks=%d", cfg.CreativePlayers, cfg.MaxOutputStacks)
	}
}

func TestLoad_EmptyPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DefaultMaxStack != 64 || cfg.Duplicates() != graph.SkipDuplicates {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name string
		yaml string
		ok   bool
	}{
		{"minimal", "tick_rate_hz: 5\n", true},
		{"reject policy", "duplicate_edges: REJECT\n", true},
		{"bad policy", "duplicate_edges: merge\n", false},
		{"zero max stack", "default_max_stack: 0\n", false},
		{"generator defaults", "generators:\n  - id: stonecutter\n    recipe_kind: STONECUTTER\n    sound: ui.cut\n", true},
		{"generator missing kind", "generators:\n  - id: stonecutter\n    sound: ui.cut\n", false},
		{"generator slash", "generators:\n  - id: a/b\n    recipe_kind: X\n    sound: s\n", false},
		{"duplicate generators", "generators:\n  - {id: a, recipe_kind: X, sound: s}\n  - {id: a, recipe_kind: Y, sound: s}\n", false},
		{"loud", "generators:\n  - {id: a, recipe_kind: X, sound: s, volume: 2}\n", false},
		{"negative capacity", "grid:\n  capacity: -1\n", false},
		{"creative players", "creative_players: [alice, \"*\"]\n", true},
		{"blank creative player", "creative_players: [\" \"]\n", false},
		{"zero output stacks", "max_output_stacks: 0\n", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := filepath.Join(t.TempDir(), "converter.yaml")
			if err := os.WriteFile(p, []byte(tc.yaml), 0o644); err != nil {
				t.Fatal(err)
			}
			cfg, err := Load(p)
			if tc.ok && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tc.ok && err == nil {
				t.Fatalf("expected error, got %+v", cfg)
			}
		})
	}
}

func TestNormalize_GeneratorCueDefaults(t *testing.T) {
	cfg := Defaults()
	cfg.Generators = []GeneratorSpec{{ID: " saw ", RecipeKind: "SAW", Sound: "s"}}
	cfg.Normalize()
	g := cfg.Generators[0]
	if g.ID != "saw" || g.Pitch != 1 || g.Volume != 1 {
		t.Fatalf("normalize: %+v", g)
	}
	if cfg.Duplicates() != graph.SkipDuplicates {
		t.Fatalf("expected skip")
	}
}

func TestRuleGenerators(t *testing.T) {
	cfg, err := Load("../../../configs/converter.yaml")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	gens := cfg.RuleGenerators()
	if len(gens) != 1 {
		t.Fatalf("generators: got %d want 1", len(gens))
	}
	g := gens[0]
	if g.Namespace != "stonecutter" || g.Kind != "STONECUTTER" || g.Cue.Sound != "block.stonecutter.take_result" {
		t.Fatalf("unexpected generator: %+v", g)
	}
}

func TestStarterStacks(t *testing.T) {
	cfg := Defaults()
	cfg.StarterKit = []item.Spec{{Item: "STONE", Count: 3}, {Item: ""}, {Item: "SIGN"}}
	got := cfg.StarterStacks()
	if len(got) != 2 {
		t.Fatalf("stacks: got %d want 2", len(got))
	}
	if got[0].Count != 3 || got[1].Count != 1 {
		t.Fatalf("unexpected counts: %+v", got)
	}
}
