package elastic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esutil"
	"github.com/qubic/go-se-ledger/entities"
	"go.uber.org/zap"
)

type Client struct {
	esClient  *elasticsearch.Client
	indexName string
	logger    *zap.SugaredLogger
}

func NewClient(esClient *elasticsearch.Client, indexName string, logger *zap.SugaredLogger) *Client {
	return &Client{
		esClient:  esClient,
		indexName: indexName,
		logger:    logger,
	}
}

type esDocument struct {
	id      string
	payload []byte
}

// PublishTransactionEvents indexes the events. Documents are identified by wallet, synchronization date and
// nonce, so republishing an event overwrites the existing document.
func (c *Client) PublishTransactionEvents(ctx context.Context, events []entities.TransactionEvent) error {
	docs := make([]*esDocument, 0, len(events))
	for _, event := range events {
		payload, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("marshalling transaction event: %w", err)
		}
		docs = append(docs, &esDocument{id: documentID(event.Transaction), payload: payload})
	}
	return c.bulkIndex(ctx, docs)
}

func documentID(tx entities.Tx) string {
	return strings.Join([]string{tx.WalletPublicKey, tx.SynchronizationDate, tx.Nonce}, ":")
}

func (c *Client) bulkIndex(ctx context.Context, data []*esDocument) error {
	start := time.Now().UnixMilli()
	bi, err := esutil.NewBulkIndexer(esutil.BulkIndexerConfig{
		Index:      c.indexName,
		Client:     c.esClient,
		NumWorkers: min(runtime.NumCPU(), 4),
	})
	if err != nil {
		return fmt.Errorf("creating bulk indexer: %w", err)
	}

	for _, d := range data {
		item := esutil.BulkIndexerItem{
			Action:     "index",
			DocumentID: d.id,
			Body:       bytes.NewReader(d.payload),
			OnFailure: func(ctx context.Context, item esutil.BulkIndexerItem, res esutil.BulkIndexerResponseItem, err error) {
				if err != nil {
					c.logger.Errorw("Error indexing document", "id", item.DocumentID, "error", err)
				} else {
					c.logger.Errorw("Error indexing document", "id", item.DocumentID, "type", res.Error.Type,
						"reason", res.Error.Reason)
				}
			},
		}
		if err = bi.Add(ctx, item); err != nil {
			c.logger.Errorw("Error adding document to bulk indexer", "id", d.id, "error", err)
		}
	}

	err = bi.Close(ctx)
	if err != nil {
		return fmt.Errorf("closing bulk indexer: %w", err)
	}

	biStats := bi.Stats()
	if biStats.NumFailed > 0 {
		return fmt.Errorf("%d errors indexing [%d] documents", biStats.NumFailed, biStats.NumFlushed)
	}
	c.logger.Debugw("Indexed documents", "count", biStats.NumFlushed, "bytes", biStats.FlushedBytes,
		"requests", biStats.NumRequests, "tookMs", time.Now().UnixMilli()-start)
	return nil
}
