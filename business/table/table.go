package table

// Table is a named slot map of the host ledger. Get returns the empty string for keys that were never set.
type Table interface {
	Get(key string) (string, error)
	Set(key, value string) error
}

type Store interface {
	Table(name string) Table
}

// Ledger wraps every handler call in one host transaction. A non-nil error returned from fn discards all
// writes of the call.
type Ledger interface {
	Update(fn func(store Store) error) error
	View(fn func(store Store) error) error
}

const (
	Transactions   = "transaction_table"
	SecureElements = "se_table"
	Values         = "my_storage_table"
)
