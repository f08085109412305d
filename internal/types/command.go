package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// CommandName identifies one entry of the device command catalog
type CommandName string

const (
	CmdConnect     CommandName = "CONNECT"
	CmdDisconnect  CommandName = "DISCONNECT"
	CmdIsConnected CommandName = "IS_CONNECTED"
	CmdApplyConfig CommandName = "APPLY_CONFIG"
	CmdGetConfig   CommandName = "GET_CONFIG"
	CmdStartStream CommandName = "START_STREAM"
	CmdStopStream  CommandName = "STOP_STREAM"
	CmdIsStreaming CommandName = "IS_STREAMING"
	CmdSWTrigger   CommandName = "SW_TRIGGER"
	CmdShutdown    CommandName = "SHUTDOWN"
)

// Commands is the fixed catalog, in the order it is shown to users.
var Commands = []CommandName{
	CmdConnect, CmdDisconnect, CmdIsConnected,
	CmdApplyConfig, CmdGetConfig,
	CmdStartStream, CmdStopStream, CmdIsStreaming,
	CmdSWTrigger, CmdShutdown,
}

// Valid reports whether the name is part of the catalog
func (n CommandName) Valid() bool {
	for _, c := range Commands {
		if c == n {
			return true
		}
	}
	return false
}

// LookupCommand normalizes user input (case-insensitive) and checks it against the catalog
func LookupCommand(s string) (CommandName, bool) {
	name := CommandName(strings.ToUpper(strings.TrimSpace(s)))
	return name, name.Valid()
}

// Params holds the free-form command parameters
type Params map[string]interface{}

// Request is the envelope sent over the command channel.
// Params is always encoded as an object, never null.
type Request struct {
	Command CommandName `json:"command"`
	Params  Params      `json:"params"`
}

// NewRequest builds an envelope with empty params when none are given
func NewRequest(name CommandName, params Params) *Request {
	if params == nil {
		params = Params{}
	}
	return &Request{Command: name, Params: params}
}

// MarshalJSON keeps params as {} when the map is nil
func (r Request) MarshalJSON() ([]byte, error) {
	type envelope Request
	e := envelope(r)
	if e.Params == nil {
		e.Params = Params{}
	}
	return json.Marshal(e)
}

// Reply is the opaque peer response. It is kept as the raw frame text.
type Reply json.RawMessage

// IsJSON reports whether the reply parses as a JSON value
func (r Reply) IsJSON() bool {
	return json.Valid(r)
}

// Pretty re-indents a JSON reply; anything else is returned as-is.
func (r Reply) Pretty() string {
	if !r.IsJSON() {
		return string(r)
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, r, "", "  "); err != nil {
		return string(r)
	}
	return buf.String()
}

// String returns the raw reply text
func (r Reply) String() string {
	return string(r)
}

// MarshalJSON emits the reply unchanged
func (r Reply) MarshalJSON() ([]byte, error) {
	if len(r) == 0 {
		return []byte("null"), nil
	}
	if !r.IsJSON() {
		return json.Marshal(string(r))
	}
	return r, nil
}

// ParseParams parses user-supplied parameter text. Only a JSON object is
// accepted. Numbers are kept as json.Number so they go out exactly as typed.
func ParseParams(text string) (Params, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Params{}, nil
	}
	var v interface{}
	if err := DecodeJSON([]byte(text), &v); err != nil {
		return nil, err
	}
	obj, ok := v.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("params must be a JSON object, got %s", jsonKind(v))
	}
	return Params(obj), nil
}

// DecodeJSON decodes exactly one JSON value into v, keeping numbers as
// json.Number. Anything after the value is an error.
func DecodeJSON(data []byte, v interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return fmt.Errorf("unexpected data after JSON value")
	}
	return nil
}

func jsonKind(v interface{}) string {
	switch v.(type) {
	case nil:
		return "null"
	case []interface{}:
		return "array"
	case string:
		return "string"
	case json.Number, float64:
		return "number"
	case bool:
		return "boolean"
	default:
		return fmt.Sprintf("%T", v)
	}
}
