package siwe

import (
	"bytes"
	"context"
	"crypto/subtle"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/layer-3/forum/core"
	"github.com/layer-3/forum/ports"
	"github.com/rs/zerolog"
)

// eip1271MagicValue is returned by isValidSignature for a valid signature
var eip1271MagicValue = [4]byte{0x16, 0x26, 0xba, 0x7e}

const eip1271ABI = `[{"type":"function","name":"isValidSignature","stateMutability":"view",
"inputs":[{"name":"hash","type":"bytes32"},{"name":"signature","type":"bytes"}],
"outputs":[{"name":"magicValue","type":"bytes4"}]}]`

var walletABI = mustParseABI(eip1271ABI)

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(err)
	}
	return parsed
}

// Options configures the Verifier
type Options struct {
	// Domain, when set, must equal the message domain
	Domain string
	// Caller enables EIP-1271 checks for smart-contract wallets; nil disables them
	Caller ethereum.ContractCaller
	Now    func() time.Time
}

// Verifier implements SignatureVerifier for wallet sign-in messages.
// Externally owned accounts are checked with EIP-191 ecrecover,
// smart-contract wallets fall back to an EIP-1271 call.
type Verifier struct {
	domain string
	caller ethereum.ContractCaller
	now    func() time.Time
	logger zerolog.Logger
}

// NewVerifier creates a new sign-in message verifier
func NewVerifier(opts Options, logger zerolog.Logger) ports.SignatureVerifier {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Verifier{
		domain: opts.Domain,
		caller: opts.Caller,
		now:    now,
		logger: logger.With().Str("component", "siwe").Logger(),
	}
}

// Verify checks the payload signature and binds it to nonce.
// Only a failing EIP-1271 call returns an error, every other problem is an invalid result.
func (v *Verifier) Verify(ctx context.Context, payload core.SignedPayload, nonce string) (core.SignatureResult, error) {
	invalid := core.SignatureResult{}

	if payload.Status != "" && payload.Status != "success" {
		return invalid, nil
	}

	msg, err := ParseMessage(payload.Message)
	if err != nil {
		v.logger.Debug().Err(err).Msg("Rejecting unparsable sign-in message")
		return invalid, nil
	}
	if subtle.ConstantTimeCompare([]byte(msg.Nonce), []byte(nonce)) != 1 {
		return invalid, nil
	}
	if v.domain != "" && !strings.EqualFold(msg.Domain, v.domain) {
		return invalid, nil
	}
	if !msg.ValidAt(v.now()) {
		return invalid, nil
	}
	if payload.Address != "" && !core.SameAddress(payload.Address, msg.Address.Hex()) {
		return invalid, nil
	}

	sig, err := hexutil.Decode(payload.Signature)
	if err != nil || len(sig) == 0 {
		return invalid, nil
	}

	hash := accounts.TextHash([]byte(payload.Message))

	if len(sig) == crypto.SignatureLength {
		if signer, ok := recoverSigner(hash, sig); ok && signer == msg.Address {
			return core.SignatureResult{IsValid: true, Address: msg.Address.Hex()}, nil
		}
	}

	if v.caller == nil {
		return invalid, nil
	}

	ok, err := v.isValidContractSignature(ctx, msg.Address, hash, sig)
	if err != nil {
		return invalid, err
	}
	if !ok {
		return invalid, nil
	}
	return core.SignatureResult{IsValid: true, Address: msg.Address.Hex()}, nil
}

// recoverSigner performs EIP-191 personal_sign recovery
func recoverSigner(hash []byte, sig []byte) (common.Address, bool) {
	normalized := make([]byte, len(sig))
	copy(normalized, sig)
	if normalized[crypto.RecoveryIDOffset] >= 27 {
		normalized[crypto.RecoveryIDOffset] -= 27
	}

	pub, err := crypto.SigToPub(hash, normalized)
	if err != nil {
		return common.Address{}, false
	}
	return crypto.PubkeyToAddress(*pub), true
}

func (v *Verifier) isValidContractSignature(ctx context.Context, wallet common.Address, hash []byte, sig []byte) (bool, error) {
	var digest [32]byte
	copy(digest[:], hash)

	input, err := walletABI.Pack("isValidSignature", digest, sig)
	if err != nil {
		return false, fmt.Errorf("failed to pack isValidSignature call: %w", err)
	}

	out, err := v.caller.CallContract(ctx, ethereum.CallMsg{To: &wallet, Data: input}, nil)
	if err != nil {
		return false, fmt.Errorf("failed to call isValidSignature: %w", err)
	}
	// Plain accounts and undeployed wallets return no data
	if len(out) < 4 {
		return false, nil
	}
	return bytes.Equal(out[:4], eip1271MagicValue[:]), nil
}
