package reveal

import (
	"github.com/pkg/errors"
)

const RequiredKeyCount = 3

// Gate is a shared secret check, not a signature scheme. The comparison is plain string equality and
// not constant time.
type Gate struct {
	required []string
}

func NewGate(requiredKeys []string) (*Gate, error) {
	if len(requiredKeys) != RequiredKeyCount {
		return nil, errors.Errorf("expected [%d] reveal keys, got [%d]", RequiredKeyCount, len(requiredKeys))
	}
	for i, key := range requiredKeys {
		if key == "" {
			return nil, errors.Errorf("reveal key [%d] is empty", i)
		}
	}
	required := make([]string, len(requiredKeys))
	copy(required, requiredKeys)
	return &Gate{required: required}, nil
}

// Allows reports whether the caller keys match the required keys in count, value and order.
func (g *Gate) Allows(callerKeys []string) bool {
	if len(callerKeys) != len(g.required) {
		return false
	}
	for i := range g.required {
		if callerKeys[i] != g.required[i] {
			return false
		}
	}
	return true
}
