package gateway

import (
	"errors"

	"github.com/naka-gawa/repo-miner/internal/domain"
)

func isUnavailable(err error) bool {
	return errors.Is(err, domain.ErrUnavailable)
}
