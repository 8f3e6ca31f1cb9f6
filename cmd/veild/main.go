package main

import (
	"bytes"
	"os"

	"github.com/btcsuite/btcd/wire"
	"github.com/gin-gonic/gin"
	"github.com/pebbe/zmq4"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/veilnet/veild/database"
	"github.com/veilnet/veild/mempool"
	"github.com/veilnet/veild/rpc"
	"github.com/veilnet/veild/state"
	"github.com/veilnet/veild/store"
	"github.com/veilnet/veild/validator"
)

func main() {
	config := zap.NewDevelopmentConfig()
	config.OutputPaths = []string{"stdout"}
	logger, err := config.Build()
	if err != nil {
		panic(err)
	}

	dbPath := os.Getenv("DB_PATH")
	if dbPath == "" {
		panic("DB_PATH not set")
	}
	db, err := database.NewMDBX(dbPath, "veild")
	if err != nil {
		panic(err)
	}
	defer db.Close()
	db.SetLogger(logger)

	var params state.Params
	switch os.Getenv("NETWORK") {
	case "mainnet":
		params = state.DefaultParams()
	case "testnet", "regtest":
		params = state.TestNetParams()
	default:
		panic("invalid network")
	}

	ledger := state.NewLedger(params).SetLogger(logger)
	storage := store.NewStorage(db).SetLogger(logger)
	snap, tip, err := storage.LoadState()
	switch {
	case err == nil:
		if err := ledger.Restore(snap); err != nil {
			panic(err)
		}
		logger.Info("restored shielded state",
			zap.Int("height", tip.Height),
			zap.Int("coins", ledger.TotalCoins()),
			zap.Int("spends", ledger.TotalSpends()))
	case errors.Is(err, store.ErrNoState):
		logger.Info("starting with fresh shielded state")
	default:
		panic(err)
	}

	var archive *store.Archive
	if dsn := os.Getenv("POSTGRES_DSN"); dsn != "" {
		gormDB, err := store.NewDB(postgres.Open(dsn), &gorm.Config{})
		if err != nil {
			panic(err)
		}
		archive = store.NewArchive(gormDB)
	}

	pool := mempool.New().SetLogger(logger)
	v := validator.New(ledger, pool).SetLogger(logger)

	if endpoint := os.Getenv("ZMQ_ENDPOINT"); endpoint != "" {
		go runTxFeed(endpoint, v, storage, tip.Height, logger)
	}

	rpcServer := rpc.Default(ledger, pool, archive).SetLogger(logger)
	port := os.Getenv("RPC_PORT")
	if port == "" {
		port = ":8080"
	}
	s := gin.Default()
	s.POST("/", rpcServer.HandleJSONRPC)
	if err := s.Run(port); err != nil {
		panic(err)
	}
}

// runTxFeed subscribes to the node's raw transaction feed and runs every
// transaction through mempool acceptance. The persisted tip is re-read per
// transaction so the activation gate follows the chain instead of staying at
// the startup height.
func runTxFeed(endpoint string, v *validator.Validator, storage *store.Storage, tipHeight int, logger *zap.Logger) {
	socket, err := zmq4.NewSocket(zmq4.SUB)
	if err != nil {
		panic(err)
	}
	if err := socket.Connect(endpoint); err != nil {
		panic(err)
	}
	if err := socket.SetSubscribe("rawtx"); err != nil {
		panic(err)
	}
	logger.Info("listening for raw transactions", zap.String("endpoint", endpoint))

	for {
		msg, err := socket.RecvMessageBytes(0)
		if err != nil {
			logger.Error("tx feed receive failed", zap.Error(err))
			continue
		}
		// topic frame, payload frame, sequence frame
		if len(msg) < 2 {
			continue
		}
		tx := &wire.MsgTx{}
		if err := tx.Deserialize(bytes.NewReader(msg[1])); err != nil {
			logger.Warn("tx feed carried an undecodable transaction", zap.Error(err))
			continue
		}
		if tip, err := storage.LoadTip(); err == nil {
			tipHeight = tip.Height
		}
		vs := validator.NewValidationState()
		opts := validator.CheckOptions{Height: tipHeight + 1, EnforceState: true}
		if !v.CheckTransaction(tx, vs, tx.TxHash(), opts) {
			logger.Info("rejected unconfirmed transaction",
				zap.String("tx", tx.TxHash().String()),
				zap.String("code", vs.Code.String()),
				zap.String("reason", vs.Reason))
		}
	}
}
