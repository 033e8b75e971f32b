package entities

import (
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
)

// DecodeTxList decodes the value of a wallet slot. Empty slots (never written or wiped) hold no transactions.
func DecodeTxList(value string) ([]Tx, error) {
	if strings.TrimSpace(value) == "" {
		return []Tx{}, nil
	}
	var txs []Tx
	if err := json.Unmarshal([]byte(value), &txs); err != nil {
		return nil, errors.Wrap(err, "unmarshalling transaction list")
	}
	if txs == nil {
		txs = []Tx{}
	}
	return txs, nil
}

func EncodeTxList(txs []Tx) (string, error) {
	stripped := make([]Tx, 0, len(txs))
	for _, tx := range txs {
		stripped = append(stripped, tx.Stripped())
	}
	data, err := json.Marshal(stripped)
	if err != nil {
		return "", errors.Wrap(err, "marshalling transaction list")
	}
	return string(data), nil
}

func DecodeSecureElement(value string) (*SecureElement, error) {
	var se SecureElement
	if err := json.Unmarshal([]byte(value), &se); err != nil {
		return nil, errors.Wrap(err, "unmarshalling secure element")
	}
	return &se, nil
}

func EncodeSecureElement(se *SecureElement) (string, error) {
	data, err := json.Marshal(se)
	if err != nil {
		return "", errors.Wrap(err, "marshalling secure element")
	}
	return string(data), nil
}
