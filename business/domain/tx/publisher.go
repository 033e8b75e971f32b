package tx

import (
	"context"
	"errors"

	"github.com/qubic/go-se-ledger/entities"
)

type Publisher interface {
	PublishTransactionEvents(ctx context.Context, events []entities.TransactionEvent) error
}

// Publishers fans events out to all configured sinks. Every sink is tried, errors are joined.
type Publishers []Publisher

func (p Publishers) PublishTransactionEvents(ctx context.Context, events []entities.TransactionEvent) error {
	var errs []error
	for _, publisher := range p {
		if err := publisher.PublishTransactionEvents(ctx, events); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
