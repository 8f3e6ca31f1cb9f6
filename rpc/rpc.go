package rpc

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/veilnet/veild/command"
	"github.com/veilnet/veild/mempool"
	"github.com/veilnet/veild/state"
	"github.com/veilnet/veild/store"
)

type RPC interface {
	RegisterCommand(cmd command.Command)
	HandleJSONRPC(ctx *gin.Context)
	SetLogger(logger *zap.Logger) RPC
	Run(port string) error
}

type rpc struct {
	commands map[string]command.Command
	logger   *zap.Logger
}

type Request struct {
	Version string      `json:"version"`
	ID      string      `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
}

type Response struct {
	Version string      `json:"version"`
	ID      string      `json:"id"`
	Result  interface{} `json:"result"`
	Error   *RPCError   `json:"error"`
}

func New() RPC {
	return &rpc{
		commands: make(map[string]command.Command),
		logger:   zap.NewNop(),
	}
}

// Default returns an RPC server with every shielded-state command
// registered. archive may be nil; the commands that need it report that at
// call time.
func Default(ledger *state.Ledger, pool *mempool.Pool, archive *store.Archive) RPC {
	r := New()
	r.RegisterCommand(command.LatestGroupID(ledger))
	r.RegisterCommand(command.CoinGroupInfo(ledger))
	r.RegisterCommand(command.IsLinkingTagUsed(ledger))
	r.RegisterCommand(command.CoinHeightAndGroup(ledger))
	r.RegisterCommand(command.MempoolConflict(pool))
	r.RegisterCommand(command.ShieldState(ledger, pool))
	r.RegisterCommand(command.AnonymitySet(ledger, archive))
	return r
}

func (r *rpc) RegisterCommand(cmd command.Command) {
	r.commands[cmd.Name()] = cmd
}

func (r *rpc) HandleJSONRPC(ctx *gin.Context) {
	req := Request{}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, Response{Result: nil, Error: NewInvalidRequestError(err.Error()), ID: req.ID, Version: req.Version})
		return
	}
	r.logger.Info("rpc request", zap.String("method", req.Method))
	params, err := json.Marshal(req.Params)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, Response{Result: nil, Error: NewInvalidParamsError(err.Error()), ID: req.ID, Version: req.Version})
		return
	}

	cmd, ok := r.commands[req.Method]
	if !ok {
		ctx.JSON(http.StatusBadRequest, Response{Result: nil, Error: NewMethodNotFoundError(), ID: req.ID, Version: req.Version})
		return
	}

	resp, err := cmd.Execute(params)
	if err != nil {
		var rpcErr *RPCError
		switch {
		case errors.As(err, &rpcErr):
		case errors.Is(err, state.ErrCoinNotFound),
			errors.Is(err, state.ErrGroupNotFound),
			errors.Is(err, state.ErrTagNotFound):
			rpcErr = NewUnknownEntityError(err.Error())
		default:
			rpcErr = NewInternalError(err.Error())
		}
		ctx.JSON(http.StatusBadRequest, Response{Result: nil, Error: rpcErr, ID: req.ID, Version: req.Version})
		return
	}
	ctx.JSON(http.StatusOK, Response{Result: resp, Error: nil, ID: req.ID, Version: req.Version})
}

func (r *rpc) SetLogger(logger *zap.Logger) RPC {
	r.logger = logger
	return r
}

func (r *rpc) Run(port string) error {
	s := gin.Default()
	s.POST("/", r.HandleJSONRPC)
	return s.Run(port)
}
