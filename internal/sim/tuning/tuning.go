package tuning

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"itemconverter.ai/internal/convert/graph"
	"itemconverter.ai/internal/convert/item"
	"itemconverter.ai/internal/convert/rulegen"
	"itemconverter.ai/internal/convert/rules"
)

type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version" validate:"required"`

	TickRateHz             int      `yaml:"tick_rate_hz" validate:"gte=1,lte=1000"`
	BidirectionalByDefault bool     `yaml:"bidirectional_by_default"`
	DuplicateEdges         string   `yaml:"duplicate_edges" validate:"oneof=skip reject"`
	DefaultMaxStack        int64    `yaml:"default_max_stack" validate:"gte=1"`
	SpecialTags            []string `yaml:"special_tags" validate:"dive,required"`

	Generators []GeneratorSpec `yaml:"generators" validate:"dive"`
	Grid       GridSpec        `yaml:"grid"`

	AuditDir   string `yaml:"audit_dir"`
	RulesDir   string `yaml:"rules_dir"`
	WatchRules bool   `yaml:"watch_rules"`
	// InventorySlots sizes each player's personal inventory.
	InventorySlots int         `yaml:"inventory_slots" validate:"gte=9"`
	StarterKit     []item.Spec `yaml:"starter_kit"`

	// CreativePlayers names the players allowed to join in creative mode.
	CreativePlayers []string `yaml:"creative_players" validate:"dive,required"`
	// MaxOutputStacks bounds the output of one conversion, in target stacks.
	MaxOutputStacks int64 `yaml:"max_output_stacks" validate:"gte=1"`
}

// GeneratorSpec turns recipes of one station kind into rules named id/...
type GeneratorSpec struct {
	ID         string  `yaml:"id" validate:"required,excludes=/"`
	RecipeKind string  `yaml:"recipe_kind" validate:"required"`
	Sound      string  `yaml:"sound" validate:"required"`
	Pitch      float32 `yaml:"pitch" validate:"gt=0"`
	Volume     float32 `yaml:"volume" validate:"gte=0,lte=1"`
}

type GridSpec struct {
	DBPath string `yaml:"db_path"`
	// Capacity is the unit limit per network; 0 means unbounded.
	Capacity int64 `yaml:"capacity" validate:"gte=0"`
}

var validate = validator.New()

func Defaults() Tuning {
	return Tuning{
		ProtocolVersion: "1.0",
		TickRateHz:      20,
		DuplicateEdges:  "skip",
		DefaultMaxStack: 64,
		InventorySlots:  36,
		MaxOutputStacks: 64,
	}
}

func Load(path string) (Tuning, error) {
	t := Defaults()
	if strings.TrimSpace(path) == "" {
		t.Normalize()
		return t, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("converter.yaml: %w", err)
	}
	t.Normalize()
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("converter.yaml: %w", err)
	}
	return t, nil
}

func (t *Tuning) Normalize() {
	if t == nil {
		return
	}
	t.DuplicateEdges = strings.ToLower(strings.TrimSpace(t.DuplicateEdges))
	if t.DuplicateEdges == "" {
		t.DuplicateEdges = "skip"
	}
	for i := range t.Generators {
		g := &t.Generators[i]
		g.ID = strings.TrimSpace(g.ID)
		if g.Pitch == 0 {
			g.Pitch = 1
		}
		if g.Volume == 0 {
			g.Volume = 1
		}
	}
	for i, tag := range t.SpecialTags {
		t.SpecialTags[i] = strings.TrimSpace(tag)
	}
	for i, name := range t.CreativePlayers {
		t.CreativePlayers[i] = strings.TrimSpace(name)
	}
}

func (t Tuning) Validate() error {
	t.Normalize()
	if err := validate.Struct(t); err != nil {
		return err
	}
	for i, sp := range t.StarterKit {
		if _, err := sp.Stack(); err != nil {
			return fmt.Errorf("starter_kit[%d]: %w", i, err)
		}
	}
	seen := map[string]bool{}
	for _, g := range t.Generators {
		if seen[g.ID] {
			return fmt.Errorf("duplicate generator id: %s", g.ID)
		}
		seen[g.ID] = true
	}
	return nil
}

// Duplicates is the graph build policy named by duplicate_edges.
func (t Tuning) Duplicates() graph.DuplicatePolicy {
	p, err := graph.ParseDuplicatePolicy(t.DuplicateEdges)
	if err != nil {
		return graph.SkipDuplicates
	}
	return p
}

func (t Tuning) RuleGenerators() []rulegen.Generator {
	out := make([]rulegen.Generator, 0, len(t.Generators))
	for _, g := range t.Generators {
		out = append(out, rulegen.Generator{
			Namespace: g.ID,
			Kind:      g.RecipeKind,
			Cue:       rules.Cue{Sound: g.Sound, Pitch: g.Pitch, Volume: g.Volume},
		})
	}
	return out
}

// StarterStacks returns the starter kit as stacks. Invalid entries are
// skipped; Validate reports them.
func (t Tuning) StarterStacks() []item.Stack {
	var out []item.Stack
	for _, sp := range t.StarterKit {
		st, err := sp.Stack()
		if err != nil {
			continue
		}
		out = append(out, st)
	}
	return out
}
