package catalogs

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"itemconverter.ai/internal/convert/item"
	"itemconverter.ai/internal/convert/rulegen"
)

// DefaultMaxStack is used for items without a max_stack of their own.
const DefaultMaxStack = 64

type Catalogs struct {
	Items   ItemCatalog
	Recipes RecipeCatalog

	// DefaultMaxStack overrides the package default when positive.
	DefaultMaxStack int64
}

type ItemCatalog struct {
	Palette       []string
	Index         map[string]uint16
	Defs          map[string]ItemDef
	PaletteDigest string
	DefsDigest    string
}

type ItemDef struct {
	ID       string   `json:"id"`
	Kind     string   `json:"kind"` // "BLOCK","MATERIAL","TOOL",...
	MaxStack int64    `json:"max_stack,omitempty"`
	Tags     []string `json:"tags,omitempty"`
}

type RecipeCatalog struct {
	ByID   map[string]RecipeDef
	Digest string
}

type RecipeDef struct {
	RecipeID string          `json:"recipe_id"`
	Station  string          `json:"station"`
	Inputs   []IngredientDef `json:"inputs"`
	Outputs  []item.Spec     `json:"outputs"`
}

// IngredientDef is one recipe slot: any of Items, Count units each.
type IngredientDef struct {
	Items []item.Spec `json:"items"`
	Count int64       `json:"count,omitempty"`
}

func Load(configDir string) (*Catalogs, error) {
	var c Catalogs

	if err := loadItems(filepath.Join(configDir, "items.json"), &c.Items); err != nil {
		return nil, err
	}
	if err := loadRecipes(filepath.Join(configDir, "recipes.json"), &c.Recipes); err != nil {
		return nil, err
	}
	return &c, nil
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// Digest identifies the loaded catalog contents.
func (c *Catalogs) Digest() string {
	return sha256Hex([]byte(c.Items.DefsDigest + "\n" + c.Recipes.Digest))
}

func loadItems(path string, out *ItemCatalog) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	out.DefsDigest = sha256Hex(raw)

	var defs []ItemDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("items.json: %w", err)
	}
	out.Defs = map[string]ItemDef{}
	for _, d := range defs {
		if d.ID == "" {
			return fmt.Errorf("items.json: empty id")
		}
		if d.MaxStack < 0 {
			return fmt.Errorf("items.json: %s: negative max_stack", d.ID)
		}
		sort.Strings(d.Tags)
		out.Defs[d.ID] = d
	}

	ids := make([]string, 0, len(out.Defs))
	for id := range out.Defs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out.Palette = ids
	out.Index = make(map[string]uint16, len(ids))
	for i, id := range ids {
		out.Index[id] = uint16(i)
	}
	palJSON, _ := json.Marshal(ids)
	out.PaletteDigest = sha256Hex(palJSON)
	return nil
}

func loadRecipes(path string, out *RecipeCatalog) error {
	out.ByID = map[string]RecipeDef{}
	raw, err := os.ReadFile(path)
	if err != nil {
		// A server can run on authored rules alone.
		if os.IsNotExist(err) {
			out.Digest = sha256Hex(nil)
			return nil
		}
		return err
	}
	out.Digest = sha256Hex(raw)

	var defs []RecipeDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("recipes.json: %w", err)
	}
	for _, r := range defs {
		if r.RecipeID == "" {
			return fmt.Errorf("recipes.json: empty recipe_id")
		}
		out.ByID[r.RecipeID] = r
	}
	return nil
}

// Tags returns the declared tags of k's item type.
func (c *Catalogs) Tags(k item.Key) []string {
	return c.Items.Defs[k.Type()].Tags
}

// MaxStackSize reports how many units of k fit in one slot.
func (c *Catalogs) MaxStackSize(k item.Key) int64 {
	if d, ok := c.Items.Defs[k.Type()]; ok && d.MaxStack > 0 {
		return d.MaxStack
	}
	if c.DefaultMaxStack > 0 {
		return c.DefaultMaxStack
	}
	return DefaultMaxStack
}

// RecipesOfKind lists the recipes made at station kind, ordered by id.
// Recipes that reference malformed stacks are skipped.
func (c *Catalogs) RecipesOfKind(kind string) []rulegen.Recipe {
	ids := make([]string, 0, len(c.Recipes.ByID))
	for id, r := range c.Recipes.ByID {
		if r.Station == kind {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	out := make([]rulegen.Recipe, 0, len(ids))
	for _, id := range ids {
		r, err := toRecipe(c.Recipes.ByID[id])
		if err != nil {
			continue
		}
		out = append(out, r)
	}
	return out
}

func toRecipe(def RecipeDef) (rulegen.Recipe, error) {
	r := rulegen.Recipe{ID: def.RecipeID}
	for _, in := range def.Inputs {
		count := in.Count
		if count <= 0 {
			count = 1
		}
		var ing rulegen.Ingredient
		for _, sp := range in.Items {
			k, err := sp.Key()
			if err != nil {
				return rulegen.Recipe{}, fmt.Errorf("recipe %s: %w", def.RecipeID, err)
			}
			ing.Alternatives = append(ing.Alternatives, item.NewStack(k, count))
		}
		r.Ingredients = append(r.Ingredients, ing)
	}
	for _, sp := range def.Outputs {
		s, err := sp.Stack()
		if err != nil {
			return rulegen.Recipe{}, fmt.Errorf("recipe %s: %w", def.RecipeID, err)
		}
		r.Outputs = append(r.Outputs, s)
	}
	return r, nil
}
