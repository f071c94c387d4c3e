package teclient

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStrNum_DecodesQuotedString(t *testing.T) {
	var s StrNum
	require.NoError(t, json.Unmarshal([]byte(`"135.50"`), &s))
	assert.Equal(t, "135.50", s.String())
}

func TestStrNum_DecodesBareNumber(t *testing.T) {
	var s StrNum
	require.NoError(t, json.Unmarshal([]byte(`135.5`), &s))
	assert.Equal(t, "135.5", s.String())
}

func TestStrNum_DecodesNullAsEmpty(t *testing.T) {
	var s StrNum
	require.NoError(t, json.Unmarshal([]byte(`null`), &s))
	assert.Equal(t, "", s.String())
}
