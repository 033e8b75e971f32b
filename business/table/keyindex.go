package table

import (
	"encoding/json"
	"slices"
	"strings"

	"github.com/pkg/errors"
)

// KeysListKey holds the json array of all keys with data, as the host store cannot iterate. It lives in the
// index table of a data table, so every data key stays usable.
const KeysListKey = "keysList"

const indexSuffix = "#index"

// Index returns the table holding the key index of the named data table.
func Index(s Store, name string) Table {
	return s.Table(name + indexSuffix)
}

func AllKeys(index Table) ([]string, error) {
	value, err := index.Get(KeysListKey)
	if err != nil {
		return nil, errors.Wrapf(err, "getting [%s]", KeysListKey)
	}
	if strings.TrimSpace(value) == "" {
		return []string{}, nil
	}
	var keys []string
	if err = json.Unmarshal([]byte(value), &keys); err != nil {
		return nil, errors.Wrapf(err, "unmarshalling [%s]", KeysListKey)
	}
	if keys == nil {
		keys = []string{}
	}
	return keys, nil
}

// EnsureKey appends id to the index if it is not listed yet.
func EnsureKey(index Table, id string) error {
	keys, err := AllKeys(index)
	if err != nil {
		return err
	}
	if slices.Contains(keys, id) {
		return nil
	}
	return saveKeys(index, append(keys, id))
}

// ResetKeys wipes the value of every indexed key in data and empties the index.
func ResetKeys(data, index Table) (int, error) {
	keys, err := AllKeys(index)
	if err != nil {
		return 0, err
	}
	for _, key := range keys {
		if err = data.Set(key, ""); err != nil {
			return 0, errors.Wrapf(err, "clearing key [%s]", key)
		}
	}
	return len(keys), saveKeys(index, []string{})
}

func saveKeys(index Table, keys []string) error {
	data, err := json.Marshal(keys)
	if err != nil {
		return errors.Wrapf(err, "marshalling [%s]", KeysListKey)
	}
	if err = index.Set(KeysListKey, string(data)); err != nil {
		return errors.Wrapf(err, "setting [%s]", KeysListKey)
	}
	return nil
}
