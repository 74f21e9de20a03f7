package chain_test

import (
	"strings"
	"testing"

	"github.com/Harardin/nft-custody/pkg/chain"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddressHex(t *testing.T) {
	tt := []string{
		"0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed",
		"0xfB6916095ca1df60bB79Ce92cE3Ea74c37c5d359",
		"0xdbF03B407c01E7cD3CBea99509d93f8DDDC8C6FB",
	}

	for _, want := range tt {
		t.Run(want, func(t *testing.T) {
			a, err := chain.HexToAddress(strings.ToLower(want))
			require.NoError(t, err)
			assert.Equal(t, want, a.Hex())
		})
	}
}

func TestHexToAddressErrors(t *testing.T) {
	tt := []struct {
		name  string
		input string
	}{
		{name: "empty", input: ""},
		{name: "short", input: "0x1234"},
		{name: "not hex", input: "0xzzAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			_, err := chain.HexToAddress(tc.input)
			require.Error(t, err)
		})
	}
}

func TestDeriveAddress(t *testing.T) {
	alice := chain.DeriveAddress("alice")
	assert.Equal(t, "0x5dad7600C5D89fE3824fFa99ec1c3eB8BF3b0501", alice.Hex())
	assert.NotEqual(t, alice, chain.DeriveAddress("bob"))
	assert.False(t, alice.IsZero())
	assert.True(t, chain.ZeroAddress.IsZero())
}

func TestAddressJSON(t *testing.T) {
	type payload struct {
		Owner chain.Address `json:"owner"`
	}

	in := payload{Owner: chain.DeriveAddress("alice")}
	data, err := json.Marshal(in)
	require.NoError(t, err)
	assert.JSONEq(t, `{"owner":"0x5dad7600C5D89fE3824fFa99ec1c3eB8BF3b0501"}`, string(data))

	var out payload
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, in, out)
}
