package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/qubic/go-se-ledger/entities"
	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/zap"
)

type KafkaClient interface {
	Produce(ctx context.Context, r *kgo.Record, promise func(*kgo.Record, error))
}

type Client struct {
	kcl    KafkaClient
	topic  string
	logger *zap.SugaredLogger
}

// NewClient creates a publisher for transaction events. If topic is empty the default topic of the kafka
// client is used.
func NewClient(kafkaClient KafkaClient, topic string, logger *zap.SugaredLogger) *Client {
	return &Client{
		kcl:    kafkaClient,
		topic:  topic,
		logger: logger,
	}
}

func (kc *Client) PublishTransactionEvents(ctx context.Context, events []entities.TransactionEvent) error {

	wg := sync.WaitGroup{}
	errorChannel := make(chan error, len(events))

	for _, event := range events {

		record, err := kc.createEventRecord(event)
		if err != nil {
			kc.logger.Errorw("Error while creating transaction event record", "error", err)
			errorChannel <- err
			break
		}

		wg.Add(1)
		kc.kcl.Produce(ctx, record, func(_ *kgo.Record, err error) {
			defer wg.Done()
			if err != nil {
				kc.logger.Errorw("Error while producing transaction event record", "walletPublicKey",
					event.Transaction.WalletPublicKey, "error", err)
				errorChannel <- err
				return
			}
			errorChannel <- nil
		})
	}

	wg.Wait()
	close(errorChannel)

	for err := range errorChannel {
		if err != nil {
			return errors.New("encountered errors while producing transaction event records")
		}
	}

	return nil
}

// createEventRecord keys the record by wallet, so the events of one wallet stay in order on one partition.
func (kc *Client) createEventRecord(event entities.TransactionEvent) (*kgo.Record, error) {

	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("marshalling transaction event to json: %w", err)
	}

	return &kgo.Record{
		Topic: kc.topic,
		Key:   []byte(event.Transaction.WalletPublicKey),
		Value: payload,
	}, nil

}
