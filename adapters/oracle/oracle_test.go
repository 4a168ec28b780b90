package oracle

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const account = "0x00000000000000000000000000000000000000a1"

type fakeCaller struct {
	until *big.Int
	err   error
	last  ethereum.CallMsg
}

func (f *fakeCaller) CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	f.last = call
	if f.err != nil {
		return nil, f.err
	}
	return common.LeftPadBytes(f.until.Bytes(), 32), nil
}

func newTestOracle(t *testing.T, caller *fakeCaller, now time.Time) *AddressBookOracle {
	t.Helper()
	o, err := NewAddressBookOracle(caller, "")
	require.NoError(t, err)
	book := o.(*AddressBookOracle)
	book.now = func() time.Time { return now }
	return book
}

func TestAddressBookOracle(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)

	tests := []struct {
		name     string
		until    int64
		verified bool
	}{
		{"never verified", 0, false},
		{"expired", now.Unix() - 1, false},
		{"expires now", now.Unix(), false},
		{"valid", now.Add(24 * time.Hour).Unix(), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			caller := &fakeCaller{until: big.NewInt(tt.until)}
			o := newTestOracle(t, caller, now)

			verified, err := o.IsVerified(context.Background(), account)
			require.NoError(t, err)
			assert.Equal(t, tt.verified, verified)
			require.NotNil(t, caller.last.To)
			assert.Equal(t, common.HexToAddress(DefaultAddressBook), *caller.last.To)
		})
	}
}

func TestAddressBookOracleErrors(t *testing.T) {
	o := newTestOracle(t, &fakeCaller{err: errors.New("connection refused")}, time.Now())
	_, err := o.IsVerified(context.Background(), account)
	assert.Error(t, err)

	_, err = o.IsVerified(context.Background(), "not-an-address")
	assert.Error(t, err)

	_, err = NewAddressBookOracle(&fakeCaller{}, "0x123")
	assert.Error(t, err)
}

func TestStaticOracle(t *testing.T) {
	o := NewStaticOracle("0xABCDEF0000000000000000000000000000000001")

	verified, err := o.IsVerified(context.Background(), "0xabcdef0000000000000000000000000000000001")
	require.NoError(t, err)
	assert.True(t, verified)

	o.Set("0xabcdef0000000000000000000000000000000001", false)
	verified, err = o.IsVerified(context.Background(), "0xabcdef0000000000000000000000000000000001")
	require.NoError(t, err)
	assert.False(t, verified)
}
