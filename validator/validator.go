package validator

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/veilnet/veild/crypto"
	"github.com/veilnet/veild/mempool"
	"github.com/veilnet/veild/model"
	"github.com/veilnet/veild/state"
)

// CheckOptions selects the validation mode for one transaction.
//
// Block-connect: EnforceState true and BlockInfo non-nil; conflicts are
// checked against the ledger and the in-flight block accumulator, and
// results are staged into the accumulator.
//
// Mempool-accept: EnforceState true and BlockInfo nil; conflicts are checked
// against the ledger and the mempool tracker, and accepted payloads are
// recorded in the tracker.
//
// Reindex/replay: IsReplay true; proofs are skipped (implied by chain of
// trust) but state is still accumulated.
type CheckOptions struct {
	IsReplay      bool
	Height        int
	IsWalletCheck bool
	EnforceState  bool
	BlockInfo     *state.BlockTxInfo

	// set by CheckBlock after batch proof verification
	proofsChecked bool
}

// Validator runs the shielded transaction pipeline against an explicitly
// injected ledger and mempool tracker.
type Validator struct {
	params   state.Params
	ledger   *state.Ledger
	pool     *mempool.Pool
	verifier *crypto.SchnorrVerifier
	logger   *zap.Logger
}

// New returns a validator over the given ledger and mempool tracker, using
// the fixed challenge transcript for proof verification.
func New(ledger *state.Ledger, pool *mempool.Pool) *Validator {
	return &Validator{
		params:   ledger.Params(),
		ledger:   ledger,
		pool:     pool,
		verifier: crypto.NewSchnorrVerifier(crypto.G, crypto.H, true),
		logger:   zap.NewNop(),
	}
}

// SetLogger attaches a logger and returns the validator for chaining.
func (v *Validator) SetLogger(logger *zap.Logger) *Validator {
	v.logger = logger
	return v
}

// CheckTransaction validates one transaction's shielded payload per the
// mode in opts. A transaction with no shielded payload passes untouched.
// On failure the reject reason is recorded in vs and false is returned.
func (v *Validator) CheckTransaction(tx *wire.MsgTx, vs *ValidationState, txHash chainhash.Hash, opts CheckOptions) bool {
	spend, mints, err := model.ParseShieldTx(tx)
	if err != nil {
		return vs.Invalid(RejectMalformed, err.Error())
	}
	if spend == nil && len(mints) == 0 {
		return true
	}

	if !v.params.IsShieldAllowed(opts.Height) {
		return vs.Invalid(RejectMalformed,
			fmt.Sprintf("shielded transactions not active at height %d", opts.Height))
	}

	if spend != nil {
		if !v.checkSpends(spend, vs, txHash, opts) {
			return false
		}
		if !v.checkBalance(spend, mints, vs) {
			return false
		}
	}
	if !v.checkMints(mints, vs, opts) {
		return false
	}

	if opts.IsWalletCheck || !opts.EnforceState {
		return true
	}
	return v.record(spend, mints, vs, txHash, opts)
}

func (v *Validator) checkSpends(spend *model.SpendPayload, vs *ValidationState, txHash chainhash.Hash, opts CheckOptions) bool {
	// well-formedness and pairwise distinctness come first: a transaction
	// that spends the same tag twice against itself is a double spend no
	// matter what its proofs say
	seen := make(map[chainhash.Hash]struct{}, len(spend.Spends))
	for i, s := range spend.Spends {
		if !s.LTag.IsMember() {
			return vs.Invalid(RejectMalformed,
				fmt.Sprintf("spend %d: linking tag is not a valid group element", i))
		}
		h := model.LTagHash(s.LTag)
		if _, ok := seen[h]; ok {
			return vs.DoubleSpend(&txHash,
				fmt.Sprintf("spend %d: transaction reuses its own linking tag", i))
		}
		seen[h] = struct{}{}
	}

	for i, s := range spend.Spends {
		if opts.EnforceState && !opts.IsWalletCheck {
			tagHash := model.LTagHash(s.LTag)
			if v.ledger.IsUsedLTag(s.LTag) {
				return vs.DoubleSpend(nil,
					fmt.Sprintf("spend %d: linking tag already used on chain", i))
			}
			if opts.BlockInfo != nil && opts.BlockInfo.HasLTag(tagHash) {
				return vs.DoubleSpend(nil,
					fmt.Sprintf("spend %d: linking tag already spent in this block", i))
			}
			if opts.BlockInfo == nil && v.pool.HasLTag(tagHash) {
				conflict, _ := v.pool.ConflictingTxHash(s.LTag)
				return vs.DoubleSpend(&conflict,
					fmt.Sprintf("spend %d: linking tag already spent in mempool", i))
			}

			// the referenced anonymity set must have existed at spend time
			setHash, err := v.ledger.GroupSetHash(s.GroupID)
			if err != nil {
				return vs.Invalid(RejectInvalidProof,
					fmt.Sprintf("spend %d: unknown coin group %d", i, s.GroupID))
			}
			if setHash != s.SetHash {
				return vs.Invalid(RejectInvalidProof,
					fmt.Sprintf("spend %d: anonymity set binding mismatch for group %d", i, s.GroupID))
			}
		}

		if opts.IsReplay || opts.proofsChecked {
			continue
		}
		if !v.verifier.Verify(s.LTag, s.A, s.B, s.Proof) {
			return vs.Invalid(RejectInvalidProof,
				fmt.Sprintf("spend %d: proof verification failed", i))
		}
	}
	return true
}

func (v *Validator) checkBalance(spend *model.SpendPayload, mints []*model.MintPayload, vs *ValidationState) bool {
	var in, out uint64
	for _, s := range spend.Spends {
		next := in + s.Value
		if next < in {
			return vs.Invalid(RejectBalanceMismatch, "spend value overflow")
		}
		in = next
	}
	for _, m := range mints {
		next := out + m.Coin.Value
		if next < out {
			return vs.Invalid(RejectBalanceMismatch, "mint value overflow")
		}
		out = next
	}
	if out+spend.Fee < out {
		return vs.Invalid(RejectBalanceMismatch, "fee overflow")
	}
	if in != out+spend.Fee {
		return vs.Invalid(RejectBalanceMismatch,
			fmt.Sprintf("spent %d != minted %d + fee %d", in, out, spend.Fee))
	}
	return true
}

func (v *Validator) checkMints(mints []*model.MintPayload, vs *ValidationState, opts CheckOptions) bool {
	for i, m := range mints {
		coin := m.Coin
		if !coin.Commitment.IsMember() {
			return vs.Invalid(RejectInvalidMint,
				fmt.Sprintf("mint %d: commitment is not a valid group element", i))
		}
		if coin.Value == 0 {
			return vs.Invalid(RejectInvalidMint, fmt.Sprintf("mint %d: zero value", i))
		}

		if !opts.EnforceState || opts.IsWalletCheck {
			continue
		}
		hash := coin.Hash()
		if v.ledger.HasCoin(coin) {
			return vs.Invalid(RejectDuplicateMint,
				fmt.Sprintf("mint %d: coin already minted on chain", i))
		}
		if opts.BlockInfo != nil && opts.BlockInfo.HasMint(hash) {
			return vs.Invalid(RejectDuplicateMint,
				fmt.Sprintf("mint %d: coin already minted in this block", i))
		}
		if opts.BlockInfo == nil && v.pool.HasMint(hash) {
			return vs.Invalid(RejectDuplicateMint,
				fmt.Sprintf("mint %d: coin already minted in mempool", i))
		}
	}
	return true
}

// record stages the transaction's effects: into the block accumulator in
// block-connect mode, into the mempool tracker in mempool-accept mode.
func (v *Validator) record(spend *model.SpendPayload, mints []*model.MintPayload, vs *ValidationState, txHash chainhash.Hash, opts CheckOptions) bool {
	if opts.BlockInfo != nil {
		opts.BlockInfo.AddTx(txHash)
		for _, m := range mints {
			opts.BlockInfo.AddMint(m.Coin)
		}
		if spend != nil {
			for _, s := range spend.Spends {
				if err := opts.BlockInfo.AddSpend(s.LTag, s.GroupID); err != nil {
					// pre-checks above make this unreachable; a hit is a bug
					v.logger.Error("failed to accumulate spend",
						zap.String("tx", txHash.String()), zap.Error(err))
					return vs.Invalid(RejectInternal, err.Error())
				}
			}
		}
		return true
	}

	if opts.IsReplay {
		return true
	}

	// mempool-accept: claim all tags atomically, then register mints
	if spend != nil {
		tags := make([]*crypto.GroupElement, len(spend.Spends))
		for i, s := range spend.Spends {
			tags[i] = s.LTag
		}
		if !v.pool.AddSpend(tags, txHash) {
			conflict, _ := v.pool.ConflictingTxHash(tags[0])
			return vs.DoubleSpend(&conflict, "conflicting spend entered mempool first")
		}
	}
	coins := make([]*model.Coin, len(mints))
	for i, m := range mints {
		coins[i] = m.Coin
	}
	v.pool.AddMints(coins)
	return true
}

// CheckBlock validates every transaction of a candidate block. Proof
// verification, the expensive pure step, runs in parallel across
// transactions; all stateful checks then run serially in canonical order.
// On success the returned accumulator is completed and ready for
// Ledger.ApplyBlock; on failure it must be discarded, which is safe because
// canonical state was never touched.
func (v *Validator) CheckBlock(block *btcutil.Block, vs *ValidationState, height int, isReplay bool) (*state.BlockTxInfo, bool) {
	txs := block.Transactions()

	if !isReplay {
		var g errgroup.Group
		for _, tx := range txs {
			msgTx := tx.MsgTx()
			txHash := *tx.Hash()
			g.Go(func() error {
				spend, _, err := model.ParseShieldTx(msgTx)
				if err != nil || spend == nil {
					// structural errors resurface in the serial pass
					return nil
				}
				for i, s := range spend.Spends {
					if !s.LTag.IsMember() {
						continue
					}
					if !v.verifier.Verify(s.LTag, s.A, s.B, s.Proof) {
						return fmt.Errorf("tx %s spend %d: proof verification failed", txHash, i)
					}
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			vs.Invalid(RejectInvalidProof, err.Error())
			return nil, false
		}
	}

	info := state.NewBlockTxInfo()
	for _, tx := range txs {
		opts := CheckOptions{
			IsReplay:      isReplay,
			Height:        height,
			EnforceState:  true,
			BlockInfo:     info,
			proofsChecked: true,
		}
		if !v.CheckTransaction(tx.MsgTx(), vs, *tx.Hash(), opts) {
			v.logger.Info("block rejected by transaction",
				zap.String("tx", tx.Hash().String()),
				zap.String("code", vs.Code.String()),
				zap.String("reason", vs.Reason))
			return nil, false
		}
	}
	info.Complete()
	return info, true
}

// ConnectBlock validates a block and, if it passes in full, commits its
// staged effects into the ledger and releases the mined entries from the
// mempool tracker.
func (v *Validator) ConnectBlock(block *btcutil.Block, vs *ValidationState, ref model.BlockRef, isReplay bool) bool {
	info, ok := v.CheckBlock(block, vs, ref.Height, isReplay)
	if !ok {
		return false
	}
	if err := v.ledger.ApplyBlock(info, ref); err != nil {
		v.logger.Error("block apply failed", zap.String("block", ref.Hash.String()), zap.Error(err))
		return vs.Invalid(RejectInternal, err.Error())
	}

	for _, spend := range info.SpentTags() {
		v.pool.RemoveSpend([]*crypto.GroupElement{spend.Tag})
	}
	for _, coin := range info.Mints() {
		v.pool.RemoveMint(coin)
	}
	v.logger.Info("connected shielded block",
		zap.String("block", ref.Hash.String()),
		zap.Int("height", ref.Height),
		zap.Int("mints", len(info.Mints())),
		zap.Int("spends", len(info.SpentTags())))
	return true
}

// DisconnectBlock rolls a previously connected block's shielded effects out
// of the ledger (reverse of application order) and resets the mempool
// tracker, whose assumptions the reorg invalidated.
func (v *Validator) DisconnectBlock(info *state.BlockTxInfo, ref model.BlockRef) error {
	if err := v.ledger.RevertBlock(info); err != nil {
		v.logger.Error("block revert failed", zap.String("block", ref.Hash.String()), zap.Error(err))
		return err
	}
	v.pool.Reset()
	v.logger.Info("disconnected shielded block",
		zap.String("block", ref.Hash.String()),
		zap.Int("height", ref.Height))
	return nil
}
