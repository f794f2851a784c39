package source

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"

	"alphawatch/internal/model"
)

// ErrTimeout marks a fetch that was aborted by its deadline. The orchestrator
// treats it like any other fetch failure (try the next source) but logs it
// separately.
var ErrTimeout = errors.New("source: request timed out")

// ErrTokenNotFound is returned by FetchToken when the upstream listing does
// not contain the requested symbol.
var ErrTokenNotFound = errors.New("source: token not found")

// Source is the capability contract shared by all data source adapters.
// Lower Priority is tried first. IsAvailable is a cheap health probe and
// never returns an error; FetchTokens performs the full fetch + normalize.
type Source interface {
	Name() string
	Priority() int
	IsAvailable(ctx context.Context) bool
	FetchTokens(ctx context.Context) ([]model.Token, error)
	FetchToken(ctx context.Context, symbol string) (model.Token, error)
}

// ByPriority returns a copy of sources sorted ascending by priority.
func ByPriority(sources []Source) []Source {
	sorted := make([]Source, len(sources))
	copy(sorted, sources)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority() < sorted[j].Priority()
	})
	return sorted
}

// asTimeout rewraps deadline-style failures so callers can distinguish them
// via errors.Is(err, ErrTimeout).
func asTimeout(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return err
}
