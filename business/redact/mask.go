// Package redact implements the format preserving projection shown to callers that did not unlock the
// transaction data. Every string is replaced by asterisks of the same length. This is not encryption.
package redact

import (
	"strings"
	"unicode/utf8"

	"github.com/qubic/go-se-ledger/entities"
)

const maskRune = "*"

func String(s string) string {
	return strings.Repeat(maskRune, utf8.RuneCountInString(s))
}

// Tx masks all string fields. The fraud flag stays readable, balance estimates keep their presence but
// lose their value.
func Tx(tx entities.Tx) entities.Tx {
	masked := entities.Tx{
		WalletPublicKey:     String(tx.WalletPublicKey),
		SynchronizationDate: String(tx.SynchronizationDate),
		TransactionName:     String(tx.TransactionName),
		FromID:              String(tx.FromID),
		ToID:                String(tx.ToID),
		Nonce:               String(tx.Nonce),
		Amount:              String(tx.Amount),
		Generation:          String(tx.Generation),
		CurrencyCode:        String(tx.CurrencyCode),
		TxDate:              String(tx.TxDate),
		FraudStatus:         tx.FraudStatus,
	}
	if tx.EstimateBalanceTo != nil {
		masked.EstimateBalanceTo = new(int64)
	}
	if tx.EstimateBalanceFrom != nil {
		masked.EstimateBalanceFrom = new(int64)
	}
	return masked
}

func Txs(txs []entities.Tx) []entities.Tx {
	masked := make([]entities.Tx, 0, len(txs))
	for _, tx := range txs {
		masked = append(masked, Tx(tx))
	}
	return masked
}

func Strings(values []string) []string {
	masked := make([]string, 0, len(values))
	for _, v := range values {
		masked = append(masked, String(v))
	}
	return masked
}
