package entitlement

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/ent0n29/speakbot/internal/identity"
)

const membershipABI = `[
  {"type":"function","name":"telegramId2TokenIdMap","stateMutability":"view",
   "inputs":[{"name":"","type":"bytes32"}],
   "outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"userRechargeInfos","stateMutability":"view",
   "inputs":[{"name":"","type":"uint256"}],
   "outputs":[{"name":"telegramId","type":"bytes32"},{"name":"startTime","type":"uint256"},{"name":"endTime","type":"uint256"}]}
]`

var errMalformedKey = errors.New("malformed user key")

type contractCaller interface {
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// ContractOracle reads membership from the on-chain registry.
type ContractOracle struct {
	caller  contractCaller
	address common.Address
	abi     abi.ABI
	now     func() time.Time
	closeFn func()
}

// DialContractOracle connects to an Ethereum JSON-RPC endpoint.
func DialContractOracle(ctx context.Context, rpcURL, contractAddr string) (*ContractOracle, error) {
	if !common.IsHexAddress(contractAddr) {
		return nil, fmt.Errorf("invalid contract address %q", contractAddr)
	}
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial eth rpc: %w", err)
	}
	o, err := newContractOracle(client, common.HexToAddress(contractAddr))
	if err != nil {
		client.Close()
		return nil, err
	}
	o.closeFn = client.Close
	return o, nil
}

func newContractOracle(caller contractCaller, address common.Address) (*ContractOracle, error) {
	parsed, err := abi.JSON(strings.NewReader(membershipABI))
	if err != nil {
		return nil, fmt.Errorf("parse membership abi: %w", err)
	}
	return &ContractOracle{
		caller:  caller,
		address: address,
		abi:     parsed,
		now:     time.Now,
	}, nil
}

// IsEntitled looks up the user's membership token and checks that its
// recharge period has not ended and belongs to the same user.
func (o *ContractOracle) IsEntitled(ctx context.Context, userKey string) (bool, error) {
	telegramID, ok := identity.ParseKey(userKey)
	if !ok {
		return false, fmt.Errorf("%w: %q", errMalformedKey, userKey)
	}

	out, err := o.call(ctx, "telegramId2TokenIdMap", [32]byte(telegramID))
	if err != nil {
		return false, err
	}
	tokenID, ok := out[0].(*big.Int)
	if !ok {
		return false, fmt.Errorf("telegramId2TokenIdMap: unexpected output %T", out[0])
	}
	if tokenID.Sign() == 0 {
		return false, nil
	}

	out, err = o.call(ctx, "userRechargeInfos", tokenID)
	if err != nil {
		return false, err
	}
	if len(out) != 3 {
		return false, fmt.Errorf("userRechargeInfos: got %d outputs", len(out))
	}
	owner, ok1 := out[0].([32]byte)
	endTime, ok2 := out[2].(*big.Int)
	if !ok1 || !ok2 {
		return false, fmt.Errorf("userRechargeInfos: unexpected output types %T, %T", out[0], out[2])
	}
	now := big.NewInt(o.now().Unix())
	return endTime.Cmp(now) > 0 && common.Hash(owner) == telegramID, nil
}

func (o *ContractOracle) Close() {
	if o.closeFn != nil {
		o.closeFn()
	}
}

func (o *ContractOracle) call(ctx context.Context, method string, args ...any) ([]any, error) {
	input, err := o.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: pack: %w", method, err)
	}
	to := o.address
	raw, err := o.caller.CallContract(ctx, ethereum.CallMsg{To: &to, Data: input}, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: call: %w", method, err)
	}
	out, err := o.abi.Unpack(method, raw)
	if err != nil {
		return nil, fmt.Errorf("%s: unpack: %w", method, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s: empty result", method)
	}
	return out, nil
}
