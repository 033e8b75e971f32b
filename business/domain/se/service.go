package se

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jellydator/ttlcache/v3"
	"github.com/pkg/errors"
	"github.com/qubic/go-se-ledger/business/table"
	"github.com/qubic/go-se-ledger/business/validation"
	"github.com/qubic/go-se-ledger/entities"
	"go.uber.org/zap"
)

type TimeSource interface {
	NowNano() int64
}

// Service registers secure elements. Records are written once and never change, so reads are cached.
type Service struct {
	ledger   table.Ledger
	validate *validator.Validate
	clock    TimeSource
	cache    *ttlcache.Cache[string, *entities.SecureElement]
	// lock so that we do not get multiple threads loading the same element
	cacheLock sync.Mutex
	logger    *zap.SugaredLogger
}

func NewService(l table.Ledger, clock TimeSource, cache *ttlcache.Cache[string, *entities.SecureElement], logger *zap.SugaredLogger) *Service {
	return &Service{
		ledger:   l,
		validate: validation.New(),
		clock:    clock,
		cache:    cache,
		logger:   logger,
	}
}

func NewCache(ttl time.Duration) *ttlcache.Cache[string, *entities.SecureElement] {
	return ttlcache.New[string, *entities.SecureElement](
		ttlcache.WithTTL[string, *entities.SecureElement](ttl),
		ttlcache.WithDisableTouchOnHit[string, *entities.SecureElement](),
	)
}

func (s *Service) Create(_ context.Context, element entities.SecureElement) (*entities.SecureElement, error) {
	if err := validation.Required(s.validate, element, "Invalid parameters: walletPublicKey is required"); err != nil {
		return nil, err
	}
	element.CreationDate = time.Duration(s.clock.NowNano()).Milliseconds()

	err := s.ledger.Update(func(store table.Store) error {
		elements := store.Table(table.SecureElements)
		existing, err := elements.Get(element.WalletPublicKey)
		if err != nil {
			return errors.Wrapf(err, "getting secure element [%s]", element.WalletPublicKey)
		}
		if existing != "" {
			return &entities.DuplicateError{Message: "Secure element already exists"}
		}

		encoded, err := entities.EncodeSecureElement(&element)
		if err != nil {
			return err
		}
		if err = elements.Set(element.WalletPublicKey, encoded); err != nil {
			return errors.Wrapf(err, "storing secure element [%s]", element.WalletPublicKey)
		}
		return table.EnsureKey(table.Index(store, table.SecureElements), element.WalletPublicKey)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Infow("Created secure element", "walletPublicKey", element.WalletPublicKey, "status", element.Status)
	return &element, nil
}

func (s *Service) Get(_ context.Context, walletID string) (*entities.SecureElement, error) {
	if walletID == "" {
		return nil, &entities.ValidationError{Message: "Invalid parameters: walletPublicKey is required", Fields: []string{"walletPublicKey"}}
	}

	s.cacheLock.Lock()
	defer s.cacheLock.Unlock()

	item := s.cache.Get(walletID)
	if item != nil {
		return item.Value(), nil
	}

	var element *entities.SecureElement
	err := s.ledger.View(func(store table.Store) error {
		var err error
		element, err = loadElement(store.Table(table.SecureElements), walletID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if element == nil {
		return nil, &entities.NotFoundError{Message: fmt.Sprintf("walletPublicKey '%s' not found in secure element table", walletID)}
	}
	s.cache.Set(walletID, element, ttlcache.DefaultTTL)
	return element, nil
}

// List returns all secure elements in registration order.
func (s *Service) List(_ context.Context) ([]entities.SecureElement, error) {
	elements := make([]entities.SecureElement, 0)
	err := s.ledger.View(func(store table.Store) error {
		t := store.Table(table.SecureElements)
		keys, err := table.AllKeys(table.Index(store, table.SecureElements))
		if err != nil {
			return err
		}
		for _, key := range keys {
			element, err := loadElement(t, key)
			if err != nil {
				return err
			}
			if element != nil {
				elements = append(elements, *element)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return elements, nil
}

func loadElement(t table.Table, walletID string) (*entities.SecureElement, error) {
	value, err := t.Get(walletID)
	if err != nil {
		return nil, errors.Wrapf(err, "getting secure element [%s]", walletID)
	}
	if value == "" {
		return nil, nil
	}
	element, err := entities.DecodeSecureElement(value)
	if err != nil {
		return nil, errors.Wrapf(err, "decoding secure element [%s]", walletID)
	}
	return element, nil
}
