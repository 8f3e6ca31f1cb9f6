package command

import "encoding/json"

// Command is one JSON-RPC method. Params arrive as raw JSON; each command
// decodes the shape it expects.
type Command interface {
	Name() string
	Execute(params json.RawMessage) (interface{}, error)
}
