package claim

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	pkgerrors "github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/Layr-Labs/eigenx-compression-go/pkg/config"
	"github.com/Layr-Labs/eigenx-compression-go/pkg/merkle"
	"github.com/Layr-Labs/eigenx-compression-go/pkg/persistence"
	"github.com/Layr-Labs/eigenx-compression-go/pkg/types"
	"github.com/Layr-Labs/eigenx-compression-go/pkg/util"
)

// TreeVerifier checks a leaf against a live concurrent tree.
// compression.Program satisfies it.
type TreeVerifier interface {
	VerifyLeaf(ctx context.Context, tree common.Address, proof *types.Proof) (bool, error)
}

// Program runs claim contracts stored in an account store. The contract
// account holds the undistributed tokens as its balance.
type Program struct {
	store    persistence.IAccountStore
	logger   *zap.Logger
	verifier TreeVerifier
	locks    util.AddressLocks
}

// NewProgram creates a claim program. verifier may be nil when no contract
// uses a live tree.
func NewProgram(store persistence.IAccountStore, verifier TreeVerifier, logger *zap.Logger) *Program {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Program{
		store:    store,
		logger:   logger,
		verifier: verifier,
	}
}

func (p *Program) load(ctx context.Context, contract common.Address) (*types.Account, *State, error) {
	acct, err := p.store.LoadAccount(ctx, contract)
	if err != nil {
		return nil, nil, pkgerrors.Wrapf(err, "failed to load contract %s", contract.Hex())
	}
	if acct == nil {
		return nil, nil, fmt.Errorf("%w: %s", ErrContractNotFound, contract.Hex())
	}
	st, err := decodeState(acct)
	if err != nil {
		return nil, nil, err
	}
	return acct, st, nil
}

func (p *Program) loadAuthorized(ctx context.Context, contract, authority common.Address) (*types.Account, *State, error) {
	acct, st, err := p.load(ctx, contract)
	if err != nil {
		return nil, nil, err
	}
	if st.Authority != authority {
		return nil, nil, fmt.Errorf("%w: %s is not the authority of %s", ErrUnauthorized, authority.Hex(), contract.Hex())
	}
	return acct, st, nil
}

func withState(acct *types.Account, st *State) (*types.Account, error) {
	data, err := encodeState(st)
	if err != nil {
		return nil, err
	}
	out := acct.Clone()
	out.Data = data
	return out, nil
}

func (p *Program) commit(ctx context.Context, contract common.Address, puts ...*types.Account) error {
	batch := persistence.NewBatch()
	for _, a := range puts {
		batch.AddPut(a)
	}
	if err := p.store.Commit(ctx, batch); err != nil {
		return pkgerrors.Wrapf(err, "failed to commit contract %s", contract.Hex())
	}
	return nil
}

func validateParams(params *Params) error {
	if params == nil {
		return fmt.Errorf("%w: params are required", ErrInvalidParams)
	}
	if params.MaxTotalClaim == 0 || params.MaxNumNodes == 0 {
		return fmt.Errorf("%w: claim limits must be positive", ErrInvalidParams)
	}
	switch params.Mode {
	case ModeMerkle:
		if params.MerkleRoot.IsEmpty() && params.Tree == (common.Address{}) {
			return fmt.Errorf("%w: merkle mode requires a root or a tree", ErrInvalidParams)
		}
		if params.Tree == (common.Address{}) && (params.MerkleDepth == 0 || params.MerkleDepth > config.MaxTreeDepth) {
			return fmt.Errorf("%w: merkle depth must be between 1 and %d", ErrInvalidParams, config.MaxTreeDepth)
		}
	case ModeWhitelist:
	default:
		return fmt.Errorf("%w: unknown mode %d", ErrInvalidParams, params.Mode)
	}
	return nil
}

// Initialize creates an unfunded contract at contract.
func (p *Program) Initialize(ctx context.Context, contract, authority common.Address, params *Params) (*State, error) {
	if err := validateParams(params); err != nil {
		return nil, err
	}
	if params.Mode == ModeMerkle && params.Tree != (common.Address{}) && p.verifier == nil {
		return nil, fmt.Errorf("%w: no tree verifier configured", ErrInvalidParams)
	}

	unlock := p.locks.Lock(contract)
	defer unlock()

	existing, err := p.store.LoadAccount(ctx, contract)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to load %s", contract.Hex())
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: %s", ErrContractExists, contract.Hex())
	}

	st := &State{
		Version:       stateVersion,
		Authority:     authority,
		Mode:          params.Mode,
		ClaimAmount:   params.ClaimAmount,
		MaxTotalClaim: params.MaxTotalClaim,
		MaxNumNodes:   params.MaxNumNodes,
		MerkleRoot:    params.MerkleRoot,
		MerkleDepth:   params.MerkleDepth,
		Tree:          params.Tree,
	}
	acct, err := withState(&types.Account{Address: contract, Owner: ProgramID}, st)
	if err != nil {
		return nil, err
	}
	if err := p.commit(ctx, contract, acct); err != nil {
		return nil, err
	}

	p.logger.Sugar().Infow("Initialized claim contract",
		"contract", contract.Hex(),
		"authority", authority.Hex(),
		"mode", st.Mode.String(),
		"maxTotalClaim", st.MaxTotalClaim,
		"maxNumNodes", st.MaxNumNodes,
	)
	return st, nil
}

// AddWhitelisted grants addr an allocation. A zero allowance takes the
// contract's ClaimAmount.
func (p *Program) AddWhitelisted(ctx context.Context, contract, authority, addr common.Address, allowance uint64) error {
	unlock := p.locks.Lock(contract)
	defer unlock()

	acct, st, err := p.loadAuthorized(ctx, contract, authority)
	if err != nil {
		return err
	}
	if st.Mode != ModeWhitelist {
		return fmt.Errorf("%w: %s uses %s eligibility", ErrWrongMode, contract.Hex(), st.Mode)
	}
	if _, ok := st.Allowance(addr); ok {
		return fmt.Errorf("%w: %s", ErrAlreadyWhitelisted, addr.Hex())
	}
	if allowance == 0 {
		allowance = st.ClaimAmount
	}
	if allowance == 0 {
		return fmt.Errorf("%w: allowance must be positive", ErrInvalidParams)
	}
	st.addWhitelisted(addr, allowance)

	updated, err := withState(acct, st)
	if err != nil {
		return err
	}
	if err := p.commit(ctx, contract, updated); err != nil {
		return err
	}

	p.logger.Sugar().Debugw("Whitelisted claimer",
		"contract", contract.Hex(),
		"address", addr.Hex(),
		"allowance", allowance,
	)
	return nil
}

// Fund moves amount from funder's balance into the contract.
func (p *Program) Fund(ctx context.Context, contract, funder common.Address, amount uint64) error {
	if amount == 0 {
		return fmt.Errorf("%w: amount must be positive", ErrInvalidParams)
	}
	if funder == contract {
		return fmt.Errorf("%w: contract cannot fund itself", ErrInvalidParams)
	}

	unlock := p.locks.Lock(contract, funder)
	defer unlock()

	acct, st, err := p.load(ctx, contract)
	if err != nil {
		return err
	}
	funderAcct, err := p.store.LoadAccount(ctx, funder)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to load funder %s", funder.Hex())
	}
	if funderAcct == nil || funderAcct.Balance < amount {
		var have uint64
		if funderAcct != nil {
			have = funderAcct.Balance
		}
		return fmt.Errorf("%w: funder %s has %d, needs %d", ErrInsufficientFunds, funder.Hex(), have, amount)
	}
	if st.TokenAmount+amount < st.TokenAmount {
		return fmt.Errorf("%w: token amount overflows", ErrInvalidParams)
	}

	funderAcct.Balance -= amount
	st.TokenAmount += amount
	updated, err := withState(acct, st)
	if err != nil {
		return err
	}
	updated.Balance += amount

	if err := p.commit(ctx, contract, updated, funderAcct); err != nil {
		return err
	}

	p.logger.Sugar().Infow("Funded claim contract",
		"contract", contract.Hex(),
		"funder", funder.Hex(),
		"amount", amount,
		"tokenAmount", st.TokenAmount,
	)
	return nil
}

// SetClaimAmount changes the per-claimer cap.
func (p *Program) SetClaimAmount(ctx context.Context, contract, authority common.Address, amount uint64) error {
	unlock := p.locks.Lock(contract)
	defer unlock()

	acct, st, err := p.loadAuthorized(ctx, contract, authority)
	if err != nil {
		return err
	}
	st.ClaimAmount = amount

	updated, err := withState(acct, st)
	if err != nil {
		return err
	}
	if err := p.commit(ctx, contract, updated); err != nil {
		return err
	}

	p.logger.Sugar().Infow("Updated claim amount", "contract", contract.Hex(), "claimAmount", amount)
	return nil
}

// checkEligibility applies the contract's mode. proof is only read in merkle
// mode.
func (p *Program) checkEligibility(
	ctx context.Context,
	st *State,
	claimer common.Address,
	amount uint64,
	proof *types.Proof,
) error {
	switch st.Mode {
	case ModeWhitelist:
		allowance, ok := st.Allowance(claimer)
		if !ok {
			return fmt.Errorf("%w: %s", ErrNotWhitelisted, claimer.Hex())
		}
		if amount > allowance {
			return fmt.Errorf("%w: requested %d, allocated %d", ErrClaimAmountExceedsAllocation, amount, allowance)
		}
		return nil

	case ModeMerkle:
		if proof == nil {
			return fmt.Errorf("%w: merkle mode requires a proof", ErrProofInvalid)
		}
		if proof.Leaf != LeafFor(claimer, amount) {
			return fmt.Errorf("%w: leaf does not commit to claimer and amount", ErrProofInvalid)
		}
		if st.Tree != (common.Address{}) {
			if p.verifier == nil {
				return fmt.Errorf("%w: no tree verifier configured", ErrProofInvalid)
			}
			ok, err := p.verifier.VerifyLeaf(ctx, st.Tree, proof)
			if !ok {
				return fmt.Errorf("%w: %v", ErrProofInvalid, err)
			}
		} else if !merkle.VerifyFullProof(proof, st.MerkleRoot, st.MerkleDepth) {
			return fmt.Errorf("%w: proof does not match root %s at depth %d", ErrProofInvalid, st.MerkleRoot, st.MerkleDepth)
		}
		if st.ClaimAmount != 0 && amount > st.ClaimAmount {
			return fmt.Errorf("%w: requested %d, cap is %d", ErrClaimAmountExceedsAllocation, amount, st.ClaimAmount)
		}
		return nil

	default:
		return fmt.Errorf("%w: unknown mode %d", ErrWrongMode, st.Mode)
	}
}

// Claim pays amount to claimer once. The contract's accounting and both
// balances change in a single commit or not at all.
func (p *Program) Claim(
	ctx context.Context,
	contract, claimer common.Address,
	amount uint64,
	proof *types.Proof,
) error {
	if amount == 0 {
		return fmt.Errorf("%w: amount must be positive", ErrInvalidParams)
	}
	if claimer == contract {
		return fmt.Errorf("%w: contract cannot claim from itself", ErrInvalidParams)
	}

	unlock := p.locks.Lock(contract, claimer)
	defer unlock()

	acct, st, err := p.load(ctx, contract)
	if err != nil {
		return err
	}
	if err := p.checkEligibility(ctx, st, claimer, amount, proof); err != nil {
		return err
	}
	if st.HasClaimed(claimer) {
		return fmt.Errorf("%w: %s", ErrAlreadyClaimed, claimer.Hex())
	}
	if st.MaxTotalClaim-st.TotalAmountClaimed < amount {
		return fmt.Errorf("%w: total claimed %d + %d exceeds %d", ErrClaimLimitExceeded, st.TotalAmountClaimed, amount, st.MaxTotalClaim)
	}
	if st.NumNodesClaimed >= st.MaxNumNodes {
		return fmt.Errorf("%w: %d of %d claims used", ErrClaimLimitExceeded, st.NumNodesClaimed, st.MaxNumNodes)
	}
	if st.Remaining() < amount || acct.Balance < amount {
		return fmt.Errorf("%w: %d remaining, %d requested", ErrClaimLimitExceeded, st.Remaining(), amount)
	}

	claimerAcct, err := p.store.LoadAccount(ctx, claimer)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to load claimer %s", claimer.Hex())
	}
	if claimerAcct == nil {
		claimerAcct = &types.Account{Address: claimer}
	}
	claimerAcct.Balance += amount

	st.TotalAmountClaimed += amount
	st.NumNodesClaimed++
	st.markClaimed(claimer)
	updated, err := withState(acct, st)
	if err != nil {
		return err
	}
	updated.Balance -= amount

	if err := p.commit(ctx, contract, updated, claimerAcct); err != nil {
		return err
	}

	p.logger.Sugar().Infow("Claimed",
		"contract", contract.Hex(),
		"claimer", claimer.Hex(),
		"amount", amount,
		"totalClaimed", st.TotalAmountClaimed,
		"numClaimed", st.NumNodesClaimed,
	)
	return nil
}

// GetState loads and decodes a claim contract.
func (p *Program) GetState(ctx context.Context, contract common.Address) (*State, error) {
	unlock := p.locks.Lock(contract)
	defer unlock()

	_, st, err := p.load(ctx, contract)
	return st, err
}
