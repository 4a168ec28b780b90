package oracle

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/layer-3/forum/ports"
)

// DefaultAddressBook is the World ID address book contract on World Chain mainnet
const DefaultAddressBook = "0x57b930D551e677CC36e2fA036Ae2fe8FdaE0330D"

const addressBookABI = `[{"type":"function","name":"addressVerifiedUntil","stateMutability":"view",
"inputs":[{"name":"account","type":"address"}],
"outputs":[{"name":"","type":"uint256"}]}]`

// AddressBookOracle answers identity checks from the on-chain address book.
// An address is verified while its recorded expiry lies in the future.
type AddressBookOracle struct {
	caller   ethereum.ContractCaller
	contract common.Address
	abi      abi.ABI
	now      func() time.Time
}

// NewAddressBookOracle creates an oracle reading contract through caller
func NewAddressBookOracle(caller ethereum.ContractCaller, contract string) (ports.IdentityOracle, error) {
	if contract == "" {
		contract = DefaultAddressBook
	}
	if !common.IsHexAddress(contract) {
		return nil, fmt.Errorf("invalid address book contract %q", contract)
	}
	parsed, err := abi.JSON(strings.NewReader(addressBookABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse address book abi: %w", err)
	}
	return &AddressBookOracle{
		caller:   caller,
		contract: common.HexToAddress(contract),
		abi:      parsed,
		now:      time.Now,
	}, nil
}

// IsVerified calls addressVerifiedUntil for address
func (o *AddressBookOracle) IsVerified(ctx context.Context, address string) (bool, error) {
	if !common.IsHexAddress(address) {
		return false, fmt.Errorf("invalid address %q", address)
	}

	input, err := o.abi.Pack("addressVerifiedUntil", common.HexToAddress(address))
	if err != nil {
		return false, fmt.Errorf("failed to pack call: %w", err)
	}

	out, err := o.caller.CallContract(ctx, ethereum.CallMsg{To: &o.contract, Data: input}, nil)
	if err != nil {
		return false, fmt.Errorf("failed to call address book: %w", err)
	}

	values, err := o.abi.Unpack("addressVerifiedUntil", out)
	if err != nil {
		return false, fmt.Errorf("failed to unpack address book result: %w", err)
	}
	if len(values) != 1 {
		return false, fmt.Errorf("unexpected address book result length %d", len(values))
	}
	until, ok := values[0].(*big.Int)
	if !ok {
		return false, fmt.Errorf("unexpected address book result type %T", values[0])
	}

	return until.Cmp(big.NewInt(o.now().Unix())) > 0, nil
}
