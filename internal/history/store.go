package history

import "github.com/yourorg/apiagent/pkg/types"

// Store archives interactions beyond the in-memory window.
type Store interface {
	Save(it *types.Interaction) error
	List() ([]types.Interaction, error)
	Clear() error
	Close() error
}
