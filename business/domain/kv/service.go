package kv

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/qubic/go-se-ledger/business/table"
	"github.com/qubic/go-se-ledger/entities"
)

// Service stores opaque values in the general purpose table.
type Service struct {
	ledger table.Ledger
}

func NewService(l table.Ledger) *Service {
	return &Service{ledger: l}
}

func (s *Service) Store(_ context.Context, key, value string) error {
	var missing []string
	if key == "" {
		missing = append(missing, "key")
	}
	if value == "" {
		missing = append(missing, "value")
	}
	if len(missing) > 0 {
		return &entities.ValidationError{Message: "Missing value arguments", Fields: missing}
	}

	return s.ledger.Update(func(store table.Store) error {
		if err := store.Table(table.Values).Set(key, value); err != nil {
			return errors.Wrapf(err, "storing value [%s]", key)
		}
		return nil
	})
}

func (s *Service) Fetch(_ context.Context, key string) (string, error) {
	if key == "" {
		return "", &entities.ValidationError{Message: "Missing value arguments", Fields: []string{"key"}}
	}

	var value string
	err := s.ledger.View(func(store table.Store) error {
		var err error
		value, err = store.Table(table.Values).Get(key)
		if err != nil {
			return errors.Wrapf(err, "getting value [%s]", key)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	if value == "" {
		return "", &entities.NotFoundError{Message: fmt.Sprintf("Key '%s' not found in table", key)}
	}
	return value, nil
}
