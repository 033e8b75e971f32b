package tx

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/qubic/go-se-ledger/business/ledger"
	"github.com/qubic/go-se-ledger/business/redact"
	"github.com/qubic/go-se-ledger/business/reveal"
	"github.com/qubic/go-se-ledger/business/table"
	"github.com/qubic/go-se-ledger/business/validation"
	"github.com/qubic/go-se-ledger/entities"
	"go.uber.org/zap"
)

const missingFieldsMessage = "Invalid parameters: One or more required fields are missing"

// TimeSource is the trusted time of the host, in nanoseconds since epoch.
type TimeSource interface {
	NowNano() int64
}

type Config struct {
	// RejectDuplicates rejects a transaction with the same walletPublicKey, synchronizationDate and nonce as
	// an already stored one. If disabled, both are stored.
	RejectDuplicates bool
	PublishTimeout   time.Duration
}

type StoreResult struct {
	FraudStatus bool
}

type TransactionList struct {
	Transactions     []entities.Tx
	WalletPublicKeys []string
	// Date is the ms epoch of the trusted time when the list was built.
	Date     string
	Revealed bool
}

type Service struct {
	ledger    table.Ledger
	balances  *ledger.BalanceLedger
	gate      *reveal.Gate
	validate  *validator.Validate
	publisher Publisher
	clock     TimeSource
	config    Config
	logger    *zap.SugaredLogger
	metrics   *Metrics
}

func NewService(
	l table.Ledger,
	balances *ledger.BalanceLedger,
	gate *reveal.Gate,
	publisher Publisher,
	clock TimeSource,
	config Config,
	logger *zap.SugaredLogger,
	metrics *Metrics,
) *Service {
	return &Service{
		ledger:    l,
		balances:  balances,
		gate:      gate,
		validate:  validation.New(),
		publisher: publisher,
		clock:     clock,
		config:    config,
		logger:    logger,
		metrics:   metrics,
	}
}

// walletList is the transaction list stored under one index key.
type walletList struct {
	key string
	txs []entities.Tx
}

// Store appends the transaction to the list of its wallet and returns the fraud status derived by replaying
// the whole ledger including the new transaction. All writes happen in one ledger update.
func (s *Service) Store(ctx context.Context, record entities.Tx) (*StoreResult, error) {
	if err := validation.Required(s.validate, record, missingFieldsMessage); err != nil {
		s.metrics.IncRejected("validation")
		return nil, err
	}
	if err := s.balances.Validate(record); err != nil {
		s.metrics.IncRejected("validation")
		return nil, err
	}
	record = record.Stripped()

	var fraud bool
	err := s.ledger.Update(func(store table.Store) error {
		transactions := store.Table(table.Transactions)
		index := table.Index(store, table.Transactions)

		walletTxs, err := loadWalletList(transactions, record.WalletPublicKey)
		if err != nil {
			return err
		}
		if s.config.RejectDuplicates {
			for _, existing := range walletTxs {
				if existing.DedupKey() == record.DedupKey() {
					return &entities.DuplicateError{Message: fmt.Sprintf(
						"Transaction with nonce '%s' and synchronizationDate '%s' already stored for walletPublicKey '%s'",
						record.Nonce, record.SynchronizationDate, record.WalletPublicKey)}
				}
			}
		}

		walletTxs = append(walletTxs, record)
		encoded, err := entities.EncodeTxList(walletTxs)
		if err != nil {
			return err
		}
		if err = transactions.Set(record.WalletPublicKey, encoded); err != nil {
			return errors.Wrapf(err, "storing transactions of wallet [%s]", record.WalletPublicKey)
		}
		if err = table.EnsureKey(index, record.WalletPublicKey); err != nil {
			return errors.Wrap(err, "updating key index")
		}

		lists, err := loadAllLists(transactions, index)
		if err != nil {
			return err
		}
		all, position := flatten(lists, record.WalletPublicKey, len(walletTxs)-1)
		if position < 0 {
			return errors.Errorf("stored transaction of wallet [%s] missing from index", record.WalletPublicKey)
		}
		result, err := s.balances.Replay(all)
		if err != nil {
			return errors.Wrap(err, "replaying ledger")
		}
		fraud = result.Transactions[position].FraudStatus
		return nil
	})
	if err != nil {
		var duplicateErr *entities.DuplicateError
		if errors.As(err, &duplicateErr) {
			s.metrics.IncRejected("duplicate")
		} else {
			s.metrics.IncRejected("storage")
		}
		return nil, err
	}

	s.metrics.IncStored(fraud)
	s.logger.Infow("Stored transaction", "walletPublicKey", record.WalletPublicKey, "transactionName",
		record.TransactionName, "nonce", record.Nonce, "fraudStatus", fraud)

	s.publish(ctx, entities.TransactionEvent{
		Transaction: record,
		FraudStatus: fraud,
		StoredAt:    s.nowMillis(),
	})

	return &StoreResult{FraudStatus: fraud}, nil
}

// ListAll returns every stored transaction in storage order (index order, then list order) with freshly
// replayed balances and fraud flags.
func (s *Service) ListAll(_ context.Context) (*TransactionList, error) {
	var list *TransactionList
	err := s.ledger.View(func(store table.Store) error {
		lists, err := loadAllLists(store.Table(table.Transactions), table.Index(store, table.Transactions))
		if err != nil {
			return err
		}
		all, _ := flatten(lists, "", -1)
		result, err := s.balances.Replay(all)
		if err != nil {
			return errors.Wrap(err, "replaying ledger")
		}

		keys := make([]string, 0, len(lists))
		for _, l := range lists {
			keys = append(keys, l.key)
		}
		list = &TransactionList{
			Transactions:     result.Transactions,
			WalletPublicKeys: keys,
			Date:             strconv.FormatInt(s.nowMillis(), 10),
			Revealed:         true,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return list, nil
}

// ListByWallet returns the transactions the wallet takes part in, either as owner of the record or as
// FromID/ToID, sorted by walletPublicKey ascending and txdate descending.
func (s *Service) ListByWallet(ctx context.Context, walletID string) (*TransactionList, error) {
	if walletID == "" {
		return nil, &entities.ValidationError{Message: "Invalid parameters: walletPublicKey is required", Fields: []string{"walletPublicKey"}}
	}

	all, err := s.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	var matching []entities.Tx
	for _, t := range all.Transactions {
		if t.WalletPublicKey == walletID || t.FromID == walletID || t.ToID == walletID {
			matching = append(matching, t)
		}
	}
	if len(matching) == 0 {
		return nil, &entities.NotFoundError{Message: fmt.Sprintf("No transactions found for key '%s'", walletID)}
	}

	slices.SortStableFunc(matching, func(a, b entities.Tx) int {
		return cmp.Or(
			cmp.Compare(a.WalletPublicKey, b.WalletPublicKey),
			cmp.Compare(b.TxDate, a.TxDate),
		)
	})

	return &TransactionList{
		Transactions: matching,
		Date:         all.Date,
		Revealed:     true,
	}, nil
}

// ListObfuscated is ListAll with every string replaced by asterisks of the same length.
func (s *Service) ListObfuscated(ctx context.Context) (*TransactionList, error) {
	list, err := s.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	return &TransactionList{
		Transactions:     redact.Txs(list.Transactions),
		WalletPublicKeys: redact.Strings(list.WalletPublicKeys),
		Date:             list.Date,
		Revealed:         false,
	}, nil
}

// Reveal returns the plain list if the caller keys unlock the gate and the obfuscated list otherwise.
func (s *Service) Reveal(ctx context.Context, callerKeys []string) (*TransactionList, error) {
	granted := s.gate.Allows(callerKeys)
	s.metrics.IncReveal(granted)
	if !granted {
		s.logger.Warnw("Reveal denied", "nrKeys", len(callerKeys))
		return s.ListObfuscated(ctx)
	}
	return s.ListAll(ctx)
}

// DeleteAll wipes every indexed wallet list and resets the index. Balances are never persisted, so there
// is nothing else to clear.
func (s *Service) DeleteAll(_ context.Context) error {
	var wiped int
	err := s.ledger.Update(func(store table.Store) error {
		var err error
		wiped, err = table.ResetKeys(store.Table(table.Transactions), table.Index(store, table.Transactions))
		if err != nil {
			return errors.Wrap(err, "resetting transaction table")
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.Infow("Deleted all transaction logs", "nrWallets", wiped)
	return nil
}

// ListWalletPublicKeys returns the distinct walletPublicKey values of all stored transactions, formatted as
// "WalletPublicKey<n>: <key>".
func (s *Service) ListWalletPublicKeys(_ context.Context) ([]string, error) {
	var unique []string
	err := s.ledger.View(func(store table.Store) error {
		lists, err := loadAllLists(store.Table(table.Transactions), table.Index(store, table.Transactions))
		if err != nil {
			return err
		}
		seen := make(map[string]bool)
		for _, l := range lists {
			for _, t := range l.txs {
				if t.WalletPublicKey != "" && !seen[t.WalletPublicKey] {
					seen[t.WalletPublicKey] = true
					unique = append(unique, t.WalletPublicKey)
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(unique) == 0 {
		return nil, &entities.NotFoundError{Message: "No transactions found in the ledger."}
	}

	formatted := make([]string, 0, len(unique))
	for i, key := range unique {
		formatted = append(formatted, fmt.Sprintf("WalletPublicKey%d: %s", i+1, key))
	}
	return formatted, nil
}

// WalletBalance replays the ledger and returns the balance and sticky fraud flag of one wallet id.
func (s *Service) WalletBalance(ctx context.Context, walletID string) (*entities.WalletBalance, error) {
	if walletID == "" {
		return nil, &entities.ValidationError{Message: "Invalid parameters: walletPublicKey is required", Fields: []string{"walletPublicKey"}}
	}

	var balance *entities.WalletBalance
	err := s.ledger.View(func(store table.Store) error {
		lists, err := loadAllLists(store.Table(table.Transactions), table.Index(store, table.Transactions))
		if err != nil {
			return err
		}
		all, _ := flatten(lists, "", -1)
		result, err := s.balances.Replay(all)
		if err != nil {
			return errors.Wrap(err, "replaying ledger")
		}
		state, ok := result.Wallet(walletID)
		if !ok {
			return &entities.NotFoundError{Message: fmt.Sprintf("No transactions found for wallet '%s'", walletID)}
		}
		balance = &entities.WalletBalance{WalletID: walletID, Balance: state.Balance, FraudStatus: state.Fraud}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return balance, nil
}

func (s *Service) publish(ctx context.Context, event entities.TransactionEvent) {
	if s.publisher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, s.config.PublishTimeout)
	defer cancel()

	// the transaction is committed already, a failing sink must not fail the call
	err := s.publisher.PublishTransactionEvents(ctx, []entities.TransactionEvent{event})
	if err != nil {
		s.metrics.IncPublishErrors()
		s.logger.Errorw("error publishing transaction event", "walletPublicKey",
			event.Transaction.WalletPublicKey, "nonce", event.Transaction.Nonce, "error", err)
	}
}

func (s *Service) nowMillis() int64 {
	return time.Duration(s.clock.NowNano()).Milliseconds()
}

func loadWalletList(t table.Table, walletID string) ([]entities.Tx, error) {
	value, err := t.Get(walletID)
	if err != nil {
		return nil, errors.Wrapf(err, "getting transactions of wallet [%s]", walletID)
	}
	txs, err := entities.DecodeTxList(value)
	if err != nil {
		return nil, errors.Wrapf(err, "decoding transactions of wallet [%s]", walletID)
	}
	return txs, nil
}

// loadAllLists reads the list of every indexed key. Indexed keys without data are skipped.
func loadAllLists(t, index table.Table) ([]walletList, error) {
	keys, err := table.AllKeys(index)
	if err != nil {
		return nil, errors.Wrap(err, "loading key index")
	}
	lists := make([]walletList, 0, len(keys))
	for _, key := range keys {
		txs, err := loadWalletList(t, key)
		if err != nil {
			return nil, err
		}
		if len(txs) == 0 {
			continue
		}
		lists = append(lists, walletList{key: key, txs: txs})
	}
	return lists, nil
}

// flatten concatenates the lists in storage order. It also returns the position of the entry at index
// entry of the list stored under key, or -1.
func flatten(lists []walletList, key string, entry int) ([]entities.Tx, int) {
	var all []entities.Tx
	position := -1
	for _, l := range lists {
		if l.key == key && entry >= 0 && entry < len(l.txs) {
			position = len(all) + entry
		}
		all = append(all, l.txs...)
	}
	return all, position
}
