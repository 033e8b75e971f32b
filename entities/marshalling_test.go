package entities

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// IMPORTANT: the field names are the handler contract and the stored format. Existing ledger data
// and clients break if they change.
func TestTx_Marshal(t *testing.T) {
	balance := int64(-50)
	tx := Tx{
		WalletPublicKey:     "wallet",
		SynchronizationDate: "2024-11-25T18:27:56.830374",
		TransactionName:     KindOfflinePayment,
		FromID:              "4515d2fae1df1951",
		ToID:                "85d87ead1e382a9d",
		Nonce:               "00000011",
		Amount:              "60",
		Generation:          "00000000",
		CurrencyCode:        "0840",
		TxDate:              "20240802",
		FraudStatus:         true,
		EstimateBalanceFrom: &balance,
	}

	expectedJson := `{"walletPublicKey":"wallet","synchronizationDate":"2024-11-25T18:27:56.830374","transactionName":"OfflinePayment","FromID":"4515d2fae1df1951","ToID":"85d87ead1e382a9d","nonce":"00000011","amount":"60","generation":"00000000","currencycode":"0840","txdate":"20240802","fraudStatus":true,"estimateBalanceFrom":-50}`
	marshalled, err := json.Marshal(tx)
	assert.NoError(t, err)
	assert.Equal(t, expectedJson, string(marshalled))
}

func TestEncodeTxList_stripsDerivedFields(t *testing.T) {
	balance := int64(100)
	encoded, err := EncodeTxList([]Tx{{WalletPublicKey: "w", FraudStatus: true, EstimateBalanceTo: &balance}})
	require.NoError(t, err)

	decoded, err := DecodeTxList(encoded)
	require.NoError(t, err)
	require.Len(t, decoded, 1)
	assert.False(t, decoded[0].FraudStatus)
	assert.Nil(t, decoded[0].EstimateBalanceTo)
	assert.Equal(t, "w", decoded[0].WalletPublicKey)
}

func TestDecodeTxList_givenEmptySlot(t *testing.T) {
	for _, value := range []string{"", "  ", "[]", "null"} {
		txs, err := DecodeTxList(value)
		require.NoError(t, err)
		assert.NotNil(t, txs)
		assert.Empty(t, txs)
	}
}

func TestDecodeTxList_givenGarbage_thenError(t *testing.T) {
	_, err := DecodeTxList("{not json")
	assert.Error(t, err)
}

func TestValidationError_listsFields(t *testing.T) {
	err := &ValidationError{Message: "missing", Fields: []string{"nonce", "amount"}}
	assert.Equal(t, "missing: [nonce, amount]", err.Error())
}
