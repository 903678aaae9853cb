package memory

import (
	"fmt"

	pkgerrors "github.com/honeynil/agri-invest-service/pkg/errors"
)

// reserve and release mirror the conditional UPDATEs of the SQL store: the
// counter never goes below zero and never above total (total < 0 means
// uncapped).
func reserve(available *int, qty int) (int, error) {
	if qty <= 0 {
		return 0, fmt.Errorf("%w: quantity must be positive", pkgerrors.ErrInvalidInput)
	}
	if *available-qty < 0 {
		return 0, pkgerrors.ErrInsufficientCapacity
	}
	*available -= qty
	return *available, nil
}

func release(available *int, total, qty int) (int, error) {
	if qty <= 0 {
		return 0, fmt.Errorf("%w: quantity must be positive", pkgerrors.ErrInvalidInput)
	}
	*available += qty
	if total >= 0 && *available > total {
		*available = total
	}
	return *available, nil
}
