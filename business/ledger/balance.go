package ledger

import (
	"math"

	"github.com/pkg/errors"
	"github.com/qubic/go-se-ledger/entities"
)

// WalletState is the replayed state of one wallet. Fraud is sticky: once the balance went negative the
// wallet stays flagged for the rest of the replay.
type WalletState struct {
	Balance int64
	Fraud   bool
}

type ReplayResult struct {
	// Transactions are annotated with fraud status and balance estimates, in replay order.
	Transactions []entities.Tx
	Wallets      map[string]*WalletState
}

func (r *ReplayResult) Wallet(id string) (WalletState, bool) {
	state, ok := r.Wallets[id]
	if !ok {
		return WalletState{}, false
	}
	return *state, true
}

// BalanceLedger keeps one signed balance per wallet id. Fund credits ToID, Defund debits FromID and
// OfflinePayment moves the amount from FromID to ToID.
type BalanceLedger struct {
	encoding AmountEncoding
}

func NewBalanceLedger(encoding AmountEncoding) *BalanceLedger {
	return &BalanceLedger{encoding: encoding}
}

func (l *BalanceLedger) Encoding() AmountEncoding {
	return l.encoding
}

// Validate checks the parts of a transaction the replay depends on.
func (l *BalanceLedger) Validate(tx entities.Tx) error {
	if !isKnownKind(tx.TransactionName) {
		return &entities.ValidationError{
			Message: "Invalid parameters: unknown transactionName",
			Fields:  []string{tx.TransactionName},
		}
	}
	if _, err := l.encoding.Parse(tx.Amount); err != nil {
		return &entities.ValidationError{
			Message: "Invalid parameters: amount must be a " + string(l.encoding) + " encoded non-negative integer",
			Fields:  []string{"amount"},
		}
	}
	return nil
}

// Replay recomputes all balances from scratch. Transactions must be in storage order.
func (l *BalanceLedger) Replay(txs []entities.Tx) (*ReplayResult, error) {
	result := &ReplayResult{
		Transactions: make([]entities.Tx, 0, len(txs)),
		Wallets:      make(map[string]*WalletState),
	}

	for i, tx := range txs {
		amount, err := l.encoding.Parse(tx.Amount)
		if err != nil {
			return nil, errors.Wrapf(err, "replaying transaction [%d] of wallet [%s]", i, tx.WalletPublicKey)
		}

		annotated := tx.Stripped()
		switch tx.TransactionName {
		case entities.KindFund:
			to, err := result.apply(tx.ToID, amount)
			if err != nil {
				return nil, errors.Wrapf(err, "replaying transaction [%d]", i)
			}
			annotated.EstimateBalanceTo = &to.Balance
			annotated.FraudStatus = to.Fraud
		case entities.KindDefund:
			from, err := result.apply(tx.FromID, -amount)
			if err != nil {
				return nil, errors.Wrapf(err, "replaying transaction [%d]", i)
			}
			annotated.EstimateBalanceFrom = &from.Balance
			annotated.FraudStatus = from.Fraud
		case entities.KindOfflinePayment:
			from, err := result.apply(tx.FromID, -amount)
			if err != nil {
				return nil, errors.Wrapf(err, "replaying transaction [%d]", i)
			}
			to, err := result.apply(tx.ToID, amount)
			if err != nil {
				return nil, errors.Wrapf(err, "replaying transaction [%d]", i)
			}
			annotated.EstimateBalanceFrom = &from.Balance
			annotated.EstimateBalanceTo = &to.Balance
			annotated.FraudStatus = from.Fraud || to.Fraud
		default:
			return nil, errors.Errorf("replaying transaction [%d]: unknown transactionName [%s]", i, tx.TransactionName)
		}
		result.Transactions = append(result.Transactions, annotated)
	}

	return result, nil
}

// apply returns a copy of the wallet state after the update, so annotations keep the value at that event.
func (r *ReplayResult) apply(walletID string, delta int64) (WalletState, error) {
	state, ok := r.Wallets[walletID]
	if !ok {
		state = &WalletState{}
		r.Wallets[walletID] = state
	}
	if (delta > 0 && state.Balance > math.MaxInt64-delta) || (delta < 0 && state.Balance < math.MinInt64-delta) {
		return WalletState{}, errors.Errorf("balance overflow for wallet [%s]", walletID)
	}
	state.Balance += delta
	if state.Balance < 0 {
		state.Fraud = true
	}
	return *state, nil
}

func isKnownKind(kind string) bool {
	switch kind {
	case entities.KindFund, entities.KindDefund, entities.KindOfflinePayment:
		return true
	default:
		return false
	}
}
