package jsonrpc2

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

const jsonSpace = " \t\r\n"

// fixedVersion always encodes as Version and accepts any "2.x" string.
type fixedVersion struct{}

func (fixedVersion) MarshalJSON() ([]byte, error) {
	return json.Marshal(Version)
}

func (fixedVersion) UnmarshalJSON(raw []byte) error {
	var v string
	if err := json.Unmarshal(raw, &v); err != nil || !strings.HasPrefix(v, "2.") {
		return fmt.Errorf("unsupported version: %s", raw)
	}
	return nil
}

// isArray reports whether raw holds a JSON array, as batches do.
func isArray(raw json.RawMessage) bool {
	trimmed := bytes.TrimLeft(raw, jsonSpace)
	return len(trimmed) > 0 && trimmed[0] == '['
}

// isNull reports whether raw is absent or the literal null.
func isNull(raw json.RawMessage) bool {
	trimmed := bytes.Trim(raw, jsonSpace)
	return len(trimmed) == 0 || string(trimmed) == "null"
}

// unmarshalPayload decodes raw into v. Null and absent payloads leave v at
// its zero value.
func unmarshalPayload(raw json.RawMessage, v interface{}) error {
	if isNull(raw) {
		return nil
	}
	return json.Unmarshal(raw, v)
}
