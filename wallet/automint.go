package wallet

import (
	"go.uber.org/zap"
)

// AckCode is the outcome of one automint attempt.
type AckCode int

const (
	AckSuccess AckCode = iota
	AckNotEnoughFunds
	AckUserRejected
	AckFailedToMint
)

func (c AckCode) String() string {
	switch c {
	case AckSuccess:
		return "success"
	case AckNotEnoughFunds:
		return "not enough funds"
	case AckUserRejected:
		return "user rejected"
	case AckFailedToMint:
		return "failed to mint"
	default:
		return "unknown"
	}
}

// WalletModel is the wallet surface autominting needs: how much transparent
// balance is mintable, unlocking, and the actual mint. Implementations talk
// to the real wallet; tests stub it.
type WalletModel interface {
	MintableAmount() uint64
	UnlockWallet() error
	MintAll() (uint64, error)
}

// AutoMinter periodically converts the wallet's transparent balance into
// shielded coins. Every outcome is an AckCode, never a panic: a missing or
// locked wallet is an ordinary result.
type AutoMinter struct {
	model     WalletModel
	threshold uint64
	logger    *zap.Logger
}

// NewAutoMinter mints whenever the mintable balance reaches threshold.
func NewAutoMinter(model WalletModel, threshold uint64) *AutoMinter {
	return &AutoMinter{
		model:     model,
		threshold: threshold,
		logger:    zap.NewNop(),
	}
}

func (a *AutoMinter) SetLogger(logger *zap.Logger) *AutoMinter {
	a.logger = logger
	return a
}

// Run performs one automint pass and reports the outcome.
func (a *AutoMinter) Run() AckCode {
	if a.model == nil {
		a.logger.Warn("automint ran without a wallet model")
		return AckFailedToMint
	}

	mintable := a.model.MintableAmount()
	if mintable < a.threshold {
		return AckNotEnoughFunds
	}

	if err := a.model.UnlockWallet(); err != nil {
		a.logger.Info("automint rejected", zap.Error(err))
		return AckUserRejected
	}

	minted, err := a.model.MintAll()
	if err != nil {
		a.logger.Error("automint failed", zap.Uint64("mintable", mintable), zap.Error(err))
		return AckFailedToMint
	}
	a.logger.Info("automint complete", zap.Uint64("minted", minted))
	return AckSuccess
}
