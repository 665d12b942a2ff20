package sidecar

import (
	"strconv"

	"github.com/bazelment/agent-sidecar/protocol"
)

// SessionInitInfo is the parsed session-init event of a session.
type SessionInitInfo struct {
	Raw             protocol.Value
	ClaudeSessionID string
	Tools           []string
}

// ParseSessionInit returns nil for a nil init.
func ParseSessionInit(init *protocol.SessionInit) *SessionInitInfo {
	if init == nil {
		return nil
	}
	return &SessionInitInfo{
		Raw:             init.RawInit,
		ClaudeSessionID: init.ClaudeSessionID,
		Tools:           append([]string(nil), init.Tools...),
	}
}

// GetString returns the raw init field key rendered as a string.
func (s *SessionInitInfo) GetString(key string) string {
	if s == nil {
		return ""
	}
	v := s.Raw.Field(key)
	switch v.Kind() {
	case protocol.KindNull:
		return ""
	case protocol.KindString:
		str, _ := v.AsString()
		return str
	case protocol.KindNumber:
		n, _ := v.AsNumber()
		return strconv.FormatFloat(n, 'f', -1, 64)
	default:
		return v.String()
	}
}

// GetStringSlice returns the string items of a list field.
func (s *SessionInitInfo) GetStringSlice(key string) []string {
	if s == nil {
		return nil
	}
	list, ok := s.Raw.Field(key).AsList()
	if !ok {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		if str, ok := item.AsString(); ok {
			out = append(out, str)
		}
	}
	return out
}

func (s *SessionInitInfo) GetMap(key string) map[string]any {
	if s == nil {
		return nil
	}
	return s.Raw.Field(key).Map()
}

func (s *SessionInitInfo) Commands() []string {
	return s.GetStringSlice("commands")
}

func (s *SessionInitInfo) OutputStyle() string {
	return s.GetString("output_style")
}

// HasTool reports whether the agent advertised tool name.
func (s *SessionInitInfo) HasTool(name string) bool {
	if s == nil {
		return false
	}
	for _, t := range s.Tools {
		if t == name {
			return true
		}
	}
	return false
}
