package protocol

import "itemconverter.ai/internal/convert/item"

// HELLO (client -> server)
type HelloMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	PlayerName      string `json:"player_name"`
	Creative        bool   `json:"creative,omitempty"`
	// Network names the storage grid the player is attached to, if any.
	Network string     `json:"network,omitempty"`
	Auth    *HelloAuth `json:"auth,omitempty"`
}

type HelloAuth struct {
	Token string `json:"token,omitempty"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string         `json:"type"`
	ProtocolVersion string         `json:"protocol_version"`
	SessionID       string         `json:"session_id"`
	PlayerID        string         `json:"player_id"`
	TickRateHz      int            `json:"tick_rate_hz"`
	InventorySlots  int            `json:"inventory_slots"`
	Catalogs        CatalogDigests `json:"catalogs"`
}

type CatalogDigests struct {
	ItemPalette     DigestRef `json:"item_palette"`
	RecipesDigest   string    `json:"recipes_digest"`
	RulesGeneration uint64    `json:"rules_generation"`
}

type DigestRef struct {
	Digest string `json:"digest"`
	Count  int    `json:"count"`
}

// CATALOG (server -> client): item definitions sent once after WELCOME.
type CatalogMsg struct {
	Type            string    `json:"type"`
	ProtocolVersion string    `json:"protocol_version"`
	Digest          string    `json:"digest"`
	Items           []ItemRef `json:"items"`
}

type ItemRef struct {
	ID       string   `json:"id"`
	Kind     string   `json:"kind,omitempty"`
	MaxStack int64    `json:"max_stack"`
	Tags     []string `json:"tags,omitempty"`
}

// SlotRef is one non-empty inventory slot.
type SlotRef struct {
	Slot  int       `json:"slot"`
	Stack item.Spec `json:"stack"`
}

// RULES_RELOADED (server -> client) after every graph rebuild.
type RulesReloadedMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Generation      uint64 `json:"generation"`
	Rules           int    `json:"rules"`
	Vertices        int    `json:"vertices"`
	Edges           int    `json:"edges"`
}
