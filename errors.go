package pagepool

import (
	"errors"
	"fmt"

	"github.com/hupe1980/pagepool/alloc"
)

var (
	// ErrClosed is returned when an operation is attempted on a closed
	// pool.
	ErrClosed = errors.New("pagepool: pool is closed")
)

// ErrInvalidOrder indicates a block order outside the supported range.
type ErrInvalidOrder struct {
	Order uint
}

func (e *ErrInvalidOrder) Error() string {
	return fmt.Sprintf("pagepool: invalid order %d (max %d)", e.Order, alloc.MaxOrder)
}
