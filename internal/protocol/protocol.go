package protocol

import "encoding/json"

const Version = "1.0"

// Message types.
const (
	TypeHello         = "HELLO"
	TypeWelcome       = "WELCOME"
	TypeCatalog       = "CATALOG"
	TypeConvert       = "CONVERT"
	TypeConvertTarget = "CONVERT_TARGET"
	TypeTargetsQuery  = "TARGETS_QUERY"
	TypeTargets       = "TARGETS"
	TypeConvertResult = "CONVERT_RESULT"
	TypeSound         = "SOUND"
	TypeRulesReloaded = "RULES_RELOADED"
)

// CountAll on the wire asks for a bulk conversion.
const CountAll int64 = -1

// BaseMessage lets us route unknown JSON messages by type.
type BaseMessage struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version,omitempty"`
}

func DecodeBase(b []byte) (BaseMessage, error) {
	var m BaseMessage
	err := json.Unmarshal(b, &m)
	return m, err
}
