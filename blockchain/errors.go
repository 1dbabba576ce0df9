package blockchain

import (
	"errors"
	"fmt"
)

var (
	ErrAlreadySigned   = errors.New("transaction already signed")
	ErrMissingField    = errors.New("transaction is missing a required field")
	ErrInvalidField    = errors.New("transaction field is malformed")
	ErrInvalidBlock    = errors.New("invalid block")
	ErrOrphanBlock     = errors.New("orphan block")
	ErrReorgFailure    = errors.New("reorganization failed")
	ErrGenesisMismatch = errors.New("genesis block mismatch")
	ErrChainCorrupt    = errors.New("chain structure corrupt")
)

// ErrMissingParent is returned when a block's parent is not known to the
// chain. It matches ErrOrphanBlock under errors.Is.
type ErrMissingParent struct {
	Hash   Hash32
	Parent Hash32
	Index  uint64
}

func (e *ErrMissingParent) Error() string {
	return fmt.Sprintf("orphan block %s at index %d: missing parent %s", e.Hash.Short(), e.Index, e.Parent.Short())
}

func (e *ErrMissingParent) Is(target error) bool {
	return target == ErrOrphanBlock
}

func invalidBlock(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidBlock, fmt.Sprintf(format, args...))
}
