package core

import (
	"encoding/json"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransactionRequestUnmarshal(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		kind    ChainKind
		wantErr bool
	}{
		{
			name:  "scilla",
			input: `{"metadata":{"chain_id":1},"scilla":{"chain_id":1,"to_addr":"zil1","amount":10}}`,
			kind:  ChainKindScilla,
		},
		{
			name:  "evm",
			input: `{"metadata":{"chain_id":56},"evm":{"to":"0x000000000000000000000000000000000000dEaD","value":"0x1"}}`,
			kind:  ChainKindEVM,
		},
		{
			name:    "both",
			input:   `{"metadata":{},"scilla":{"amount":1},"evm":{"value":"0x1"}}`,
			wantErr: true,
		},
		{
			name:    "neither",
			input:   `{"metadata":{"chain_id":1}}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var req TransactionRequest
			err := json.Unmarshal([]byte(tt.input), &req)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrTransaction)
				assert.ErrorIs(t, err, ErrInvalidPayload)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.kind, req.Kind())
			assert.NoError(t, req.Validate())
		})
	}
}

func TestTransactionRequestValidate(t *testing.T) {
	var nilScilla *ScillaPayload

	tests := []struct {
		name    string
		req     *TransactionRequest
		wantErr bool
	}{
		{"nil request", nil, true},
		{"no payload", &TransactionRequest{}, true},
		{"typed nil payload", &TransactionRequest{Payload: nilScilla}, true},
		{"evm", &TransactionRequest{Payload: &EvmPayload{}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidPayload)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestTransactionRequestMarshal(t *testing.T) {
	to := common.HexToAddress("0x000000000000000000000000000000000000dEaD")
	req, err := NewTransactionRequest(TransactionMetadata{ChainID: 56}, &EvmPayload{To: &to})
	require.NoError(t, err)

	b, err := json.Marshal(req)
	require.NoError(t, err)

	var m map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(b, &m))
	assert.Contains(t, m, "metadata")
	assert.Contains(t, m, "evm")
	assert.NotContains(t, m, "scilla")
}

func TestApplyEstimate(t *testing.T) {
	est := &GasEstimate{
		Nonce:          5,
		GasLimit:       21000,
		GasPrice:       big.NewInt(10),
		BaseFee:        big.NewInt(100),
		MaxPriorityFee: big.NewInt(2),
	}

	t.Run("evm dynamic fee", func(t *testing.T) {
		req := &TransactionRequest{Payload: &EvmPayload{}}
		require.True(t, req.NeedsEstimate())

		req.ApplyEstimate(est, 150)
		p, _ := req.Evm()
		assert.Equal(t, hexutil.Uint64(5), *p.Nonce)
		assert.Equal(t, hexutil.Uint64(31500), *p.Gas)
		assert.Nil(t, p.GasPrice)
		assert.Equal(t, int64(202), p.MaxFeePerGas.ToInt().Int64())
		assert.Equal(t, int64(2), p.MaxPriorityFeePerGas.ToInt().Int64())
		assert.False(t, req.NeedsEstimate())
	})

	t.Run("evm keeps explicit values", func(t *testing.T) {
		nonce := hexutil.Uint64(9)
		req := &TransactionRequest{Payload: &EvmPayload{Nonce: &nonce, GasPrice: (*hexutil.Big)(big.NewInt(1))}}
		req.ApplyEstimate(est, 0)
		p, _ := req.Evm()
		assert.Equal(t, hexutil.Uint64(9), *p.Nonce)
		assert.Equal(t, hexutil.Uint64(21000), *p.Gas)
		assert.Nil(t, p.MaxFeePerGas)
	})

	t.Run("scilla", func(t *testing.T) {
		req := &TransactionRequest{Payload: &ScillaPayload{GasLimit: 50}}
		req.ApplyEstimate(est, 0)
		p, _ := req.Scilla()
		assert.Equal(t, uint64(5), p.Nonce)
		assert.Equal(t, uint64(50), p.GasLimit)
		assert.Equal(t, int64(10), p.GasPrice.Int64())
	})
}

func TestTransactionRequestClone(t *testing.T) {
	to := common.HexToAddress("0x000000000000000000000000000000000000dEaD")
	req := &TransactionRequest{
		Metadata: TransactionMetadata{ChainID: 56, Token: &TokenContext{Symbol: "USDT"}},
		Payload:  &EvmPayload{To: &to, Data: hexutil.Bytes{0xa9, 0x05}},
	}

	c := req.Clone()
	c.ApplyEstimate(&GasEstimate{Nonce: 3, GasLimit: 21000, GasPrice: big.NewInt(5)}, 100)
	c.Metadata.Token.Symbol = "BUSD"
	p, _ := c.Evm()
	p.Data[0] = 0

	assert.True(t, req.NeedsEstimate())
	assert.False(t, c.NeedsEstimate())
	assert.Equal(t, "USDT", req.Metadata.Token.Symbol)
	orig, _ := req.Evm()
	assert.Equal(t, byte(0xa9), orig.Data[0])

	scilla := &TransactionRequest{Payload: &ScillaPayload{ToAddr: "zil1", Amount: big.NewInt(1)}}
	sc := scilla.Clone()
	sc.ApplyEstimate(&GasEstimate{Nonce: 9, GasLimit: 50, GasPrice: big.NewInt(2)}, 0)
	sp, _ := scilla.Scilla()
	assert.Zero(t, sp.Nonce)
	assert.Nil(t, sp.GasPrice)

	assert.Nil(t, (*TransactionRequest)(nil).Clone())
}

func TestTransactionStatusText(t *testing.T) {
	for _, s := range []TransactionStatus{TransactionStatusPending, TransactionStatusConfirmed, TransactionStatusRejected} {
		b, err := s.MarshalText()
		require.NoError(t, err)

		var got TransactionStatus
		require.NoError(t, got.UnmarshalText(b))
		assert.Equal(t, s, got)
	}
}
