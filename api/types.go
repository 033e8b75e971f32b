package api

import (
	"github.com/qubic/go-se-ledger/business/domain/tx"
	"github.com/qubic/go-se-ledger/entities"
)

type WalletRequest struct {
	WalletPublicKey string `json:"walletPublicKey"`
}

type RevealRequest struct {
	InputKeys []string `json:"inputKeys"`
}

type ValueRequest struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type SuccessResponse struct {
	Success bool `json:"success"`
}

type ErrorResponse struct {
	Success bool     `json:"success"`
	Message string   `json:"message"`
	Fields  []string `json:"fields,omitempty"`
}

type StoreTransactionResponse struct {
	Success     bool `json:"success"`
	FraudStatus bool `json:"fraudStatus"`
}

// TransactionListResponse is never paginated, has_next is always false.
type TransactionListResponse struct {
	Success          bool          `json:"success"`
	TransactionList  []entities.Tx `json:"transactionList"`
	HasNext          bool          `json:"has_next"`
	LastEvaluatedKey string        `json:"last_evaluated_key"`
	Date             string        `json:"date"`
}

type AllTransactionsResponse struct {
	TransactionListResponse
	WalletPublicKeys []string `json:"walletPublicKeys"`
	Revealed         bool     `json:"revealed"`
}

type WalletPublicKeysResponse struct {
	Success          bool     `json:"success"`
	WalletPublicKeys []string `json:"walletPublicKeys"`
}

type WalletBalanceResponse struct {
	Success bool `json:"success"`
	entities.WalletBalance
}

type CreateSecureElementResponse struct {
	Success bool                   `json:"success"`
	Value   entities.SecureElement `json:"value"`
}

type SecureElementResponse struct {
	Success       bool                   `json:"success"`
	SecureElement entities.SecureElement `json:"secureElement"`
}

type SecureElementListResponse struct {
	Success        bool                     `json:"success"`
	SecureElements []entities.SecureElement `json:"seList"`
}

type ValueResponse struct {
	Success bool   `json:"success"`
	Value   string `json:"value"`
}

func newTransactionListResponse(list *tx.TransactionList) TransactionListResponse {
	transactions := list.Transactions
	if transactions == nil {
		transactions = []entities.Tx{}
	}
	return TransactionListResponse{
		Success:         true,
		TransactionList: transactions,
		Date:            list.Date,
	}
}

func newAllTransactionsResponse(list *tx.TransactionList) AllTransactionsResponse {
	keys := list.WalletPublicKeys
	if keys == nil {
		keys = []string{}
	}
	return AllTransactionsResponse{
		TransactionListResponse: newTransactionListResponse(list),
		WalletPublicKeys:        keys,
		Revealed:                list.Revealed,
	}
}
