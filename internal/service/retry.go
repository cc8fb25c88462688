// internal/service/retry.go

package service

import (
	"errors"
	"math/rand"
	"time"

	"github.com/JosueRDx/DotsGo-backend/internal/apperr"
	"github.com/JosueRDx/DotsGo-backend/internal/repository"
)

const (
	retryAttempts   = 3
	retryBackoffMin = 5 * time.Millisecond
	retryBackoffMax = 25 * time.Millisecond
)

// withOptimisticRetry runs op until it stops losing version races. The op
// must reload the aggregate on every attempt; only conflict errors are
// retried, anything else returns as-is.
func withOptimisticRetry(op func() error) error {
	var err error
	for attempt := 0; attempt < retryAttempts; attempt++ {
		err = op()
		if !errors.Is(err, repository.ErrVersionConflict) {
			return err
		}
		time.Sleep(retryBackoff())
	}
	return apperr.Internal(err)
}

func retryBackoff() time.Duration {
	spread := int64(retryBackoffMax - retryBackoffMin)
	return retryBackoffMin + time.Duration(rand.Int63n(spread))
}
