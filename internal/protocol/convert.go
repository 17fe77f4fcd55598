package protocol

import "itemconverter.ai/internal/convert/item"

// Source kinds.
const (
	SourceInventory = "INVENTORY"
	SourceCreative  = "CREATIVE"
	SourceGrid      = "GRID"
)

// SourceRef locates the stack to convert. Slot is used for INVENTORY; Item
// names the stack for CREATIVE and GRID and, when present for INVENTORY, is
// the stack the client expects in that slot.
type SourceRef struct {
	Kind string     `json:"kind"`
	Slot int        `json:"slot,omitempty"`
	Item *item.Spec `json:"item,omitempty"`
}

// CONVERT (client -> server)
type ConvertMsg struct {
	Type            string    `json:"type"`
	ProtocolVersion string    `json:"protocol_version"`
	RequestID       string    `json:"request_id,omitempty"`
	Source          SourceRef `json:"source"`
	Target          item.Spec `json:"target"`
	// Count is the number of source units to use, or CountAll.
	Count  int64  `json:"count"`
	Policy string `json:"policy,omitempty"`
}

// CONVERT_TARGET (client -> server): make Target from whatever the inventory holds.
type ConvertTargetMsg struct {
	Type            string    `json:"type"`
	ProtocolVersion string    `json:"protocol_version"`
	RequestID       string    `json:"request_id,omitempty"`
	Target          item.Spec `json:"target"`
	Bulk            bool      `json:"bulk,omitempty"`
}

// TARGETS_QUERY (client -> server)
type TargetsQueryMsg struct {
	Type            string    `json:"type"`
	ProtocolVersion string    `json:"protocol_version"`
	RequestID       string    `json:"request_id,omitempty"`
	Source          item.Spec `json:"source"`
}

// TARGETS (server -> client): direct conversions out of Source.
type TargetsMsg struct {
	Type            string      `json:"type"`
	ProtocolVersion string      `json:"protocol_version"`
	RequestID       string      `json:"request_id"`
	Source          item.Spec   `json:"source"`
	Generation      uint64      `json:"generation"`
	Targets         []TargetRef `json:"targets"`
}

// TargetRef trades Consumes source units for Item.Count target units.
type TargetRef struct {
	Item     item.Spec `json:"item"`
	Consumes int64     `json:"consumes"`
	Rule     string    `json:"rule"`
	Special  bool      `json:"special,omitempty"`
}

// CONVERT_RESULT (server -> client)
type ConvertResultMsg struct {
	Type            string     `json:"type"`
	ProtocolVersion string     `json:"protocol_version"`
	RequestID       string     `json:"request_id"`
	OK              bool       `json:"ok"`
	Code            string     `json:"code,omitempty"`
	Message         string     `json:"message,omitempty"`
	Consumed        int64      `json:"consumed,omitempty"`
	Produced        *item.Spec `json:"produced,omitempty"`
	Ratio           string     `json:"ratio,omitempty"`
	Route           []string   `json:"route,omitempty"`
	Inventory       []SlotRef  `json:"inventory,omitempty"`
}

// SOUND (server -> client)
type SoundMsg struct {
	Type            string  `json:"type"`
	ProtocolVersion string  `json:"protocol_version"`
	Sound           string  `json:"sound"`
	Pitch           float32 `json:"pitch"`
	Volume          float32 `json:"volume"`
}
