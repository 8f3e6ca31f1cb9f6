package rpc

type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
}

func NewRPCError(code int, message string, data interface{}) *RPCError {
	return &RPCError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

func NewParsingError(message string) *RPCError {
	return NewRPCError(-32700, message, nil)
}

func NewInvalidRequestError(message string) *RPCError {
	return NewRPCError(-32600, message, nil)
}

func NewMethodNotFoundError() *RPCError {
	return NewRPCError(-32601, "method not found", nil)
}

func NewInvalidParamsError(message string) *RPCError {
	return NewRPCError(-32602, message, nil)
}

func NewInternalError(message string) *RPCError {
	return NewRPCError(-32603, message, nil)
}

// NewUnknownEntityError reports a query for a coin, coin group or linking
// tag the node has never seen. -32001 sits in the implementation-defined
// range, distinguishing "not found" from a malformed request or an internal
// fault so wallets can treat it as a definitive negative answer.
func NewUnknownEntityError(message string) *RPCError {
	return NewRPCError(-32001, message, nil)
}

func (e *RPCError) Error() string {
	return e.Message
}
