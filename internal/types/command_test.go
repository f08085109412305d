package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookupCommand(t *testing.T) {
	name, ok := LookupCommand("  apply_config ")
	assert.True(t, ok)
	assert.Equal(t, CmdApplyConfig, name)

	_, ok = LookupCommand("REBOOT")
	assert.False(t, ok)
}

func TestParseParams(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		want    Params
		wantErr bool
	}{
		{name: "empty", text: "  ", want: Params{}},
		{name: "object", text: `{"exposure": 100, "label": "cam0"}`, want: Params{"exposure": json.Number("100"), "label": "cam0"}},
		{name: "large integers", text: `{"serial": 9007199254740993, "exposure": 12345678901234567}`,
			want: Params{"serial": json.Number("9007199254740993"), "exposure": json.Number("12345678901234567")}},
		{name: "array", text: `[1, 2]`, wantErr: true},
		{name: "number", text: `42`, wantErr: true},
		{name: "trailing object", text: `{"a": 1} {"b": 2}`, wantErr: true},
		{name: "trailing garbage", text: `{"a": 1} x`, wantErr: true},
		{name: "malformed", text: `{"a":`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseParams(tt.text)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseParamsReencodesExactly(t *testing.T) {
	params, err := ParseParams(`{"serial": 9007199254740993, "exposure": 12345678901234567}`)
	require.NoError(t, err)

	out, err := json.Marshal(NewRequest(CmdApplyConfig, params))
	require.NoError(t, err)
	assert.Equal(t, `{"command":"APPLY_CONFIG","params":{"exposure":12345678901234567,"serial":9007199254740993}}`, string(out))
}

func TestParseParamsNonObjectMessage(t *testing.T) {
	_, err := ParseParams(`12345678901234567`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "got number")
}
