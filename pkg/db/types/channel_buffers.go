package dbtypes

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// ChannelBuffers maps a sales channel name to the units withheld for it.
// Stored as jsonb in Postgres and a JSON text column under sqlite.
type ChannelBuffers map[string]int

func (b *ChannelBuffers) Scan(src any) error {
	if src == nil {
		*b = ChannelBuffers{}
		return nil
	}

	switch v := src.(type) {
	case []byte:
		return b.parseJSON(v)
	case string:
		return b.parseJSON([]byte(v))
	default:
		return fmt.Errorf("ChannelBuffers: unsupported Scan type %T", src)
	}
}

func (b ChannelBuffers) Value() (driver.Value, error) {
	if len(b) == 0 {
		return "{}", nil
	}
	raw, err := json.Marshal(b)
	if err != nil {
		return nil, fmt.Errorf("ChannelBuffers: marshal: %w", err)
	}
	return string(raw), nil
}

// Total returns the sum of all per-channel buffers.
func (b ChannelBuffers) Total() int {
	total := 0
	for _, units := range b {
		total += units
	}
	return total
}

// Clone returns an independent copy so callers can mutate safely.
func (b ChannelBuffers) Clone() ChannelBuffers {
	out := make(ChannelBuffers, len(b))
	for channel, units := range b {
		out[channel] = units
	}
	return out
}

func (b *ChannelBuffers) parseJSON(raw []byte) error {
	if len(raw) == 0 {
		*b = ChannelBuffers{}
		return nil
	}
	out := ChannelBuffers{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("ChannelBuffers: parse %q: %w", raw, err)
	}
	*b = out
	return nil
}
