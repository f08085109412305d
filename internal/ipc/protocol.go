package ipc

import (
	"encoding/json"
	"fmt"

	"github.com/berrythewa/ifmctl/internal/types"
)

// EncodeRequest renders the envelope as one compact text frame:
//
//	{"command":"CONNECT","params":{}}
func EncodeRequest(req *types.Request) ([]byte, error) {
	if req == nil {
		return nil, fmt.Errorf("nil request")
	}
	return json.Marshal(req)
}

// DecodeRequest parses an envelope frame. Missing params decode as an empty
// object and numbers stay json.Number; the command name is not checked
// against the catalog here.
func DecodeRequest(frame []byte) (*types.Request, error) {
	var req types.Request
	if err := types.DecodeJSON(frame, &req); err != nil {
		return nil, fmt.Errorf("decode request: %w", err)
	}
	if req.Params == nil {
		req.Params = types.Params{}
	}
	return &req, nil
}
