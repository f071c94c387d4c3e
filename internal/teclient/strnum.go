package teclient

import (
	"bytes"
	"encoding/json"
)

// StrNum decodes a JSON field that TE sometimes emits as a string
// ("135.50") and sometimes as a bare number (135.5), normalizing both to
// their textual form so downstream decimal parsing is uniform. An absent
// or null field decodes to the empty string.
type StrNum string

func (s *StrNum) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) || len(b) == 0 {
		*s = ""
		return nil
	}
	if b[0] == '"' {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return err
		}
		*s = StrNum(str)
		return nil
	}
	*s = StrNum(b)
	return nil
}

func (s StrNum) String() string { return string(s) }
