package entities

const (
	KindFund           = "Fund"
	KindDefund         = "Defund"
	KindOfflinePayment = "OfflinePayment"
)

type Tx struct {
	WalletPublicKey     string `json:"walletPublicKey" validate:"required"`
	SynchronizationDate string `json:"synchronizationDate" validate:"required"`
	TransactionName     string `json:"transactionName" validate:"required"`
	FromID              string `json:"FromID" validate:"required"`
	ToID                string `json:"ToID" validate:"required"`
	Nonce               string `json:"nonce" validate:"required"`
	Amount              string `json:"amount" validate:"required"`
	Generation          string `json:"generation" validate:"required"`
	CurrencyCode        string `json:"currencycode" validate:"required"`
	TxDate              string `json:"txdate" validate:"required"`
	FraudStatus         bool   `json:"fraudStatus"`
	EstimateBalanceTo   *int64 `json:"estimateBalanceTo,omitempty"`
	EstimateBalanceFrom *int64 `json:"estimateBalanceFrom,omitempty"`
}

// DedupKey identifies a transaction for duplicate detection.
func (tx Tx) DedupKey() string {
	return tx.WalletPublicKey + "|" + tx.SynchronizationDate + "|" + tx.Nonce
}

// Stripped returns the transaction without any derived fields, which is the form that gets persisted.
func (tx Tx) Stripped() Tx {
	tx.FraudStatus = false
	tx.EstimateBalanceTo = nil
	tx.EstimateBalanceFrom = nil
	return tx
}

type TransactionEvent struct {
	Transaction Tx    `json:"transaction"`
	FraudStatus bool  `json:"fraudStatus"`
	StoredAt    int64 `json:"storedAt"`
}

type SecureElement struct {
	WalletPublicKey string `json:"walletPublicKey" validate:"required"`
	Field1          string `json:"field1"`
	Field2          string `json:"field2"`
	CreationDate    int64  `json:"creationDate"`
	Status          string `json:"status"`
}

type WalletBalance struct {
	WalletID    string `json:"walletId"`
	Balance     int64  `json:"balance"`
	FraudStatus bool   `json:"fraudStatus"`
}
