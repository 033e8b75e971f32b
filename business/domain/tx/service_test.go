package tx

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/qubic/go-se-ledger/business/ledger"
	"github.com/qubic/go-se-ledger/business/reveal"
	"github.com/qubic/go-se-ledger/business/table"
	"github.com/qubic/go-se-ledger/entities"
	"github.com/qubic/go-se-ledger/infrastructure/store/pebbledb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var metrics = NewMetrics("test")
var ErrMock = errors.New("mock error")

var revealKeys = []string{"d23c2888169c", "40610b3cf4df", "abb4a17bfbf0"}

type MockPublisher struct {
	events      []entities.TransactionEvent
	shouldError bool
	locker      sync.Mutex
}

func (mp *MockPublisher) PublishTransactionEvents(_ context.Context, events []entities.TransactionEvent) error {
	if mp.shouldError {
		return ErrMock
	}
	mp.locker.Lock()
	mp.events = append(mp.events, events...)
	mp.locker.Unlock()
	return nil
}

type MockClock struct {
	nano int64
}

func (mc *MockClock) NowNano() int64 {
	return mc.nano
}

type testEnv struct {
	service   *Service
	store     *pebbledb.Store
	publisher *MockPublisher
}

func newTestEnv(t *testing.T, config Config) *testEnv {
	dbDir, err := os.MkdirTemp("", "pebble_test")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(dbDir) })

	store, err := pebbledb.NewLedgerStore(dbDir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	gate, err := reveal.NewGate(revealKeys)
	require.NoError(t, err)

	logger, err := zap.NewDevelopment()
	require.NoError(t, err)

	if config.PublishTimeout == 0 {
		config.PublishTimeout = time.Second
	}
	publisher := &MockPublisher{}
	clock := &MockClock{nano: 1732559276830374000}
	service := NewService(store, ledger.NewBalanceLedger(ledger.EncodingDecimal), gate, publisher, clock, config, logger.Sugar(), metrics)
	return &testEnv{service: service, store: store, publisher: publisher}
}

func newTx(wallet, kind, from, to, amount, nonce, txDate string) entities.Tx {
	return entities.Tx{
		WalletPublicKey:     wallet,
		SynchronizationDate: "2024-11-25T18:27:56.830374",
		TransactionName:     kind,
		FromID:              from,
		ToID:                to,
		Nonce:               nonce,
		Amount:              amount,
		Generation:          "00000000",
		CurrencyCode:        "0840",
		TxDate:              txDate,
	}
}

func ptr(v int64) *int64 {
	return &v
}

func TestService_Store_thenListByWallet(t *testing.T) {
	env := newTestEnv(t, Config{RejectDuplicates: true})
	ctx := context.Background()

	record := newTx("SE1", entities.KindOfflinePayment, "A", "B", "10", "00000001", "20240802")
	_, err := env.service.Store(ctx, newTx("SE0", entities.KindFund, "bank", "A", "100", "00000001", "20240801"))
	require.NoError(t, err)
	_, err = env.service.Store(ctx, record)
	require.NoError(t, err)

	for _, walletID := range []string{"SE1", "A", "B"} {
		list, err := env.service.ListByWallet(ctx, walletID)
		require.NoError(t, err, walletID)
		found := false
		for _, tx := range list.Transactions {
			if tx.WalletPublicKey == record.WalletPublicKey && tx.Nonce == record.Nonce {
				found = true
			}
		}
		assert.True(t, found, "record not listed for wallet [%s]", walletID)
	}
}

func TestService_Store_fundThenOverdraw(t *testing.T) {
	env := newTestEnv(t, Config{RejectDuplicates: true})
	ctx := context.Background()

	result, err := env.service.Store(ctx, newTx("W", entities.KindFund, "bank", "W", "100", "00000001", "20240801"))
	require.NoError(t, err)
	assert.False(t, result.FraudStatus)

	result, err = env.service.Store(ctx, newTx("W", entities.KindDefund, "W", "bank", "150", "00000002", "20240802"))
	require.NoError(t, err)
	assert.True(t, result.FraudStatus)

	balance, err := env.service.WalletBalance(ctx, "W")
	require.NoError(t, err)
	assert.Equal(t, &entities.WalletBalance{WalletID: "W", Balance: -50, FraudStatus: true}, balance)

	list, err := env.service.ListAll(ctx)
	require.NoError(t, err)

	// fraud flag is the sticky wallet state at the time of each event
	first := newTx("W", entities.KindFund, "bank", "W", "100", "00000001", "20240801")
	first.EstimateBalanceTo = ptr(100)
	second := newTx("W", entities.KindDefund, "W", "bank", "150", "00000002", "20240802")
	second.EstimateBalanceFrom = ptr(-50)
	second.FraudStatus = true
	expected := []entities.Tx{first, second}

	if diff := cmp.Diff(expected, list.Transactions); diff != "" {
		t.Fatalf("Unexpected result: %v", diff)
	}
	assert.Equal(t, []string{"W"}, list.WalletPublicKeys)
	assert.Equal(t, "1732559276830", list.Date)
}

func TestService_Store_storesWithoutDerivedFields(t *testing.T) {
	env := newTestEnv(t, Config{RejectDuplicates: true})

	record := newTx("W", entities.KindFund, "bank", "W", "100", "00000001", "20240801")
	record.FraudStatus = true
	record.EstimateBalanceTo = ptr(12345)
	_, err := env.service.Store(context.Background(), record)
	require.NoError(t, err)

	err = env.store.View(func(s table.Store) error {
		raw, err := s.Table(table.Transactions).Get("W")
		require.NoError(t, err)
		assert.NotContains(t, raw, "estimateBalance")
		assert.Contains(t, raw, `"fraudStatus":false`)
		return nil
	})
	require.NoError(t, err)
}

func TestService_Store_givenMissingFields_thenValidationErrorAndNoWrite(t *testing.T) {
	env := newTestEnv(t, Config{RejectDuplicates: true})
	ctx := context.Background()

	record := newTx("W", entities.KindFund, "bank", "W", "100", "00000001", "20240801")
	record.Nonce = ""
	record.CurrencyCode = ""

	_, err := env.service.Store(ctx, record)
	var validationErr *entities.ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.ElementsMatch(t, []string{"nonce", "currencycode"}, validationErr.Fields)

	list, err := env.service.ListAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, list.Transactions)
	assert.Empty(t, list.WalletPublicKeys)
	assert.Empty(t, env.publisher.events)
}

func TestService_Store_givenInvalidAmountOrKind_thenValidationError(t *testing.T) {
	env := newTestEnv(t, Config{RejectDuplicates: true})
	ctx := context.Background()
	var validationErr *entities.ValidationError

	_, err := env.service.Store(ctx, newTx("W", entities.KindFund, "bank", "W", "00000000003c", "1", "20240801"))
	require.ErrorAs(t, err, &validationErr)

	_, err = env.service.Store(ctx, newTx("W", entities.KindFund, "bank", "W", "-5", "2", "20240801"))
	require.ErrorAs(t, err, &validationErr)

	_, err = env.service.Store(ctx, newTx("W", "Refund", "bank", "W", "5", "3", "20240801"))
	require.ErrorAs(t, err, &validationErr)

	_, err = env.service.Store(ctx, newTx("W", entities.KindFund, "bank", "W", "1e2", "4", "20240801"))
	require.ErrorAs(t, err, &validationErr)
	assert.Equal(t, []string{"amount"}, validationErr.Fields)
}

func TestService_Store_givenDuplicate_thenRejected(t *testing.T) {
	env := newTestEnv(t, Config{RejectDuplicates: true})
	ctx := context.Background()

	record := newTx("W", entities.KindFund, "bank", "W", "100", "00000001", "20240801")
	_, err := env.service.Store(ctx, record)
	require.NoError(t, err)

	// same dedup key, different payload
	duplicate := record
	duplicate.Amount = "5"
	_, err = env.service.Store(ctx, duplicate)
	var duplicateErr *entities.DuplicateError
	require.ErrorAs(t, err, &duplicateErr)

	list, err := env.service.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, list.Transactions, 1)
	assert.Equal(t, "100", list.Transactions[0].Amount)
	assert.Len(t, env.publisher.events, 1)
}

func TestService_Store_givenDuplicateAndDedupDisabled_thenStoredTwice(t *testing.T) {
	env := newTestEnv(t, Config{RejectDuplicates: false})
	ctx := context.Background()

	record := newTx("W", entities.KindFund, "bank", "W", "100", "00000001", "20240801")
	_, err := env.service.Store(ctx, record)
	require.NoError(t, err)
	_, err = env.service.Store(ctx, record)
	require.NoError(t, err)

	list, err := env.service.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, list.Transactions, 2)

	balance, err := env.service.WalletBalance(ctx, "W")
	require.NoError(t, err)
	assert.Equal(t, int64(200), balance.Balance)
}

func TestService_Store_publishesEvent(t *testing.T) {
	env := newTestEnv(t, Config{RejectDuplicates: true})

	_, err := env.service.Store(context.Background(), newTx("W", entities.KindDefund, "W", "bank", "1", "1", "20240801"))
	require.NoError(t, err)

	require.Len(t, env.publisher.events, 1)
	event := env.publisher.events[0]
	assert.True(t, event.FraudStatus)
	assert.Equal(t, "W", event.Transaction.WalletPublicKey)
	assert.Equal(t, int64(1732559276830), event.StoredAt)
}

func TestService_Store_givenPublishError_thenStillStored(t *testing.T) {
	env := newTestEnv(t, Config{RejectDuplicates: true})
	env.publisher.shouldError = true
	ctx := context.Background()

	_, err := env.service.Store(ctx, newTx("W", entities.KindFund, "bank", "W", "1", "1", "20240801"))
	require.NoError(t, err)

	list, err := env.service.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, list.Transactions, 1)
}

func TestService_ListAll_storageOrder(t *testing.T) {
	env := newTestEnv(t, Config{RejectDuplicates: true})
	ctx := context.Background()

	stored := []entities.Tx{
		newTx("SE2", entities.KindFund, "bank", "A", "10", "1", "20240801"),
		newTx("SE1", entities.KindFund, "bank", "B", "10", "1", "20240803"),
		newTx("SE2", entities.KindOfflinePayment, "A", "B", "5", "2", "20240802"),
	}
	for _, record := range stored {
		_, err := env.service.Store(ctx, record)
		require.NoError(t, err)
	}

	list, err := env.service.ListAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"SE2", "SE1"}, list.WalletPublicKeys)

	var order []string
	for _, tx := range list.Transactions {
		order = append(order, tx.WalletPublicKey+"/"+tx.Nonce)
	}
	// index order, then list order
	assert.Equal(t, []string{"SE2/1", "SE2/2", "SE1/1"}, order)

	balanceA, err := env.service.WalletBalance(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, int64(5), balanceA.Balance)
	balanceB, err := env.service.WalletBalance(ctx, "B")
	require.NoError(t, err)
	assert.Equal(t, int64(15), balanceB.Balance)
}

func TestService_ListByWallet_sortedByWalletThenTxDateDescending(t *testing.T) {
	env := newTestEnv(t, Config{RejectDuplicates: true})
	ctx := context.Background()

	for _, record := range []entities.Tx{
		newTx("SE2", entities.KindFund, "bank", "A", "10", "1", "20240801"),
		newTx("SE1", entities.KindOfflinePayment, "A", "B", "1", "1", "20240801"),
		newTx("SE1", entities.KindOfflinePayment, "A", "B", "1", "2", "20240805"),
		newTx("SE2", entities.KindDefund, "A", "bank", "1", "2", "20240803"),
	} {
		_, err := env.service.Store(ctx, record)
		require.NoError(t, err)
	}

	list, err := env.service.ListByWallet(ctx, "A")
	require.NoError(t, err)

	var order []string
	for _, tx := range list.Transactions {
		order = append(order, tx.WalletPublicKey+"/"+tx.TxDate)
	}
	assert.Equal(t, []string{"SE1/20240805", "SE1/20240801", "SE2/20240803", "SE2/20240801"}, order)
}

func TestService_ListByWallet_givenUnknownWallet_thenNotFound(t *testing.T) {
	env := newTestEnv(t, Config{RejectDuplicates: true})

	_, err := env.service.ListByWallet(context.Background(), "unknown")
	var notFoundErr *entities.NotFoundError
	require.ErrorAs(t, err, &notFoundErr)
	assert.Equal(t, "No transactions found for key 'unknown'", notFoundErr.Message)

	_, err = env.service.WalletBalance(context.Background(), "unknown")
	require.ErrorAs(t, err, &notFoundErr)
}

func TestService_ListObfuscated_sameStructureAndLengths(t *testing.T) {
	env := newTestEnv(t, Config{RejectDuplicates: true})
	ctx := context.Background()

	for _, record := range []entities.Tx{
		newTx("SE1", entities.KindFund, "bank", "A", "100", "1", "20240801"),
		newTx("SE1", entities.KindOfflinePayment, "A", "B", "250", "2", "20240802"),
	} {
		_, err := env.service.Store(ctx, record)
		require.NoError(t, err)
	}

	plain, err := env.service.ListAll(ctx)
	require.NoError(t, err)
	masked, err := env.service.ListObfuscated(ctx)
	require.NoError(t, err)

	assert.False(t, masked.Revealed)
	require.Len(t, masked.Transactions, len(plain.Transactions))
	require.Len(t, masked.WalletPublicKeys, len(plain.WalletPublicKeys))
	for i, key := range plain.WalletPublicKeys {
		assert.Equal(t, strings.Repeat("*", len(key)), masked.WalletPublicKeys[i])
	}
	for i, p := range plain.Transactions {
		m := masked.Transactions[i]
		assert.Equal(t, strings.Repeat("*", len(p.Amount)), m.Amount)
		assert.Equal(t, strings.Repeat("*", len(p.WalletPublicKey)), m.WalletPublicKey)
		assert.Equal(t, strings.Repeat("*", len(p.TransactionName)), m.TransactionName)
		assert.Equal(t, strings.Repeat("*", len(p.SynchronizationDate)), m.SynchronizationDate)
		assert.Equal(t, p.FraudStatus, m.FraudStatus)
		assert.Equal(t, p.EstimateBalanceTo == nil, m.EstimateBalanceTo == nil)
		assert.Equal(t, p.EstimateBalanceFrom == nil, m.EstimateBalanceFrom == nil)
	}
	// the fraud flag survives masking
	assert.True(t, masked.Transactions[1].FraudStatus)
}

func TestService_Reveal(t *testing.T) {
	env := newTestEnv(t, Config{RejectDuplicates: true})
	ctx := context.Background()

	_, err := env.service.Store(ctx, newTx("SE1", entities.KindFund, "bank", "A", "100", "1", "20240801"))
	require.NoError(t, err)

	list, err := env.service.Reveal(ctx, revealKeys)
	require.NoError(t, err)
	assert.True(t, list.Revealed)
	assert.Equal(t, "SE1", list.Transactions[0].WalletPublicKey)
	assert.Equal(t, "100", list.Transactions[0].Amount)

	for _, keys := range [][]string{
		{"d23c2888169c", "40610b3cf4df", "wrong"},
		{"40610b3cf4df", "d23c2888169c", "abb4a17bfbf0"},
		{"d23c2888169c", "40610b3cf4df"},
		nil,
	} {
		list, err = env.service.Reveal(ctx, keys)
		require.NoError(t, err)
		assert.False(t, list.Revealed)
		tx := list.Transactions[0]
		for _, field := range []string{tx.WalletPublicKey, tx.Amount, tx.FromID, tx.ToID, tx.Nonce, tx.TxDate} {
			assert.Equal(t, strings.Repeat("*", len(field)), field)
		}
	}
}

func TestService_DeleteAll(t *testing.T) {
	env := newTestEnv(t, Config{RejectDuplicates: true})
	ctx := context.Background()

	for _, record := range []entities.Tx{
		newTx("SE1", entities.KindFund, "bank", "A", "100", "1", "20240801"),
		newTx("SE2", entities.KindFund, "bank", "B", "100", "1", "20240801"),
	} {
		_, err := env.service.Store(ctx, record)
		require.NoError(t, err)
	}

	require.NoError(t, env.service.DeleteAll(ctx))

	list, err := env.service.ListAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, list.Transactions)
	assert.Empty(t, list.WalletPublicKeys)

	_, err = env.service.ListWalletPublicKeys(ctx)
	var notFoundErr *entities.NotFoundError
	require.ErrorAs(t, err, &notFoundErr)

	// same record can be stored again after the wipe
	_, err = env.service.Store(ctx, newTx("SE1", entities.KindFund, "bank", "A", "100", "1", "20240801"))
	require.NoError(t, err)
	balance, err := env.service.WalletBalance(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, int64(100), balance.Balance)
}

func TestService_ListAll_givenIndexedKeyWithoutData_thenSkipped(t *testing.T) {
	env := newTestEnv(t, Config{RejectDuplicates: true})
	ctx := context.Background()

	_, err := env.service.Store(ctx, newTx("SE1", entities.KindFund, "bank", "A", "100", "1", "20240801"))
	require.NoError(t, err)

	// index entry whose record write never happened
	err = env.store.Update(func(s table.Store) error {
		return table.EnsureKey(table.Index(s, table.Transactions), "orphan")
	})
	require.NoError(t, err)

	list, err := env.service.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, list.Transactions, 1)
	assert.Equal(t, []string{"SE1"}, list.WalletPublicKeys)
}

func TestService_ListWalletPublicKeys(t *testing.T) {
	env := newTestEnv(t, Config{RejectDuplicates: true})
	ctx := context.Background()

	for _, record := range []entities.Tx{
		newTx("SE1", entities.KindFund, "bank", "A", "100", "1", "20240801"),
		newTx("SE1", entities.KindFund, "bank", "A", "100", "2", "20240801"),
		newTx("SE2", entities.KindFund, "bank", "B", "100", "1", "20240801"),
	} {
		_, err := env.service.Store(ctx, record)
		require.NoError(t, err)
	}

	keys, err := env.service.ListWalletPublicKeys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"WalletPublicKey1: SE1", "WalletPublicKey2: SE2"}, keys)
}

func TestPublishers_fanOut(t *testing.T) {
	first := &MockPublisher{}
	failing := &MockPublisher{shouldError: true}
	last := &MockPublisher{}

	err := Publishers{first, failing, last}.PublishTransactionEvents(context.Background(), []entities.TransactionEvent{{StoredAt: 1}})
	require.ErrorIs(t, err, ErrMock)
	assert.Len(t, first.events, 1)
	assert.Len(t, last.events, 1)
}

func TestService_Store_givenWalletNamedLikeIndexSlot_thenStoredAndListed(t *testing.T) {
	for _, indexFirst := range []bool{false, true} {
		env := newTestEnv(t, Config{RejectDuplicates: true})
		ctx := context.Background()

		if indexFirst {
			_, err := env.service.Store(ctx, newTx("SE1", entities.KindFund, "bank", "A", "100", "1", "20240801"))
			require.NoError(t, err)
		}

		record := newTx(table.KeysListKey, entities.KindFund, "bank", "B", "100", "1", "20240801")
		_, err := env.service.Store(ctx, record)
		require.NoError(t, err, "indexFirst [%t]", indexFirst)

		list, err := env.service.ListByWallet(ctx, table.KeysListKey)
		require.NoError(t, err)
		require.Len(t, list.Transactions, 1)
		assert.Equal(t, table.KeysListKey, list.Transactions[0].WalletPublicKey)

		all, err := env.service.ListAll(ctx)
		require.NoError(t, err)
		if indexFirst {
			assert.Len(t, all.Transactions, 2)
			assert.Equal(t, []string{"SE1", table.KeysListKey}, all.WalletPublicKeys)
		} else {
			assert.Equal(t, []string{table.KeysListKey}, all.WalletPublicKeys)
		}

		require.NoError(t, env.service.DeleteAll(ctx))
		all, err = env.service.ListAll(ctx)
		require.NoError(t, err)
		assert.Empty(t, all.Transactions)
	}
}
