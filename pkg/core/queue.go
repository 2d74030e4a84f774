package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
)

// Picker chooses which of n listed queue members to claim.
// Random choice spreads contention between claimants; correctness does not depend on it.
type Picker func(n int) int

// RandomPicker picks uniformly at random.
func RandomPicker(n int) int {
	return rand.IntN(n)
}

// ClaimOptions tunes ClaimMessage.
type ClaimOptions struct {
	Picker   Picker
	Logger   *slog.Logger
	Observer Observer
}

// ClaimMessage removes one message from queue and returns it, or (nil, nil) if the queue is empty.
//
// A message belongs to whichever claimant deletes its entry first. When the
// delete reports ErrNotFound another claimant won, and the protocol starts
// over from a fresh listing. The loop ends when a message is won, the queue is
// observed empty, or ctx is done.
func ClaimMessage(ctx context.Context, repo Repository, queue string, opts ClaimOptions) (*Document, error) {
	pick := opts.Picker
	if pick == nil {
		pick = RandomPicker
	}
	observer := opts.Observer
	if observer == nil {
		observer = nopObserver{}
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		names, err := repo.ListMessages(ctx, queue)
		if err != nil {
			return nil, fmt.Errorf("list queue %s: %w", queue, err)
		}
		if len(names) == 0 {
			return nil, nil
		}

		name := names[0]
		if len(names) > 1 {
			name = names[pick(len(names))]
		}

		msg, err := repo.FetchMessage(ctx, queue, name)
		if err != nil {
			return nil, fmt.Errorf("read message %s/%s: %w", queue, name, err)
		}
		if msg == nil {
			lostClaim(opts.Logger, observer, queue, name)
			continue
		}

		if err := repo.DeleteMessage(ctx, queue, name); err != nil {
			if errors.Is(err, ErrNotFound) {
				lostClaim(opts.Logger, observer, queue, name)
				continue
			}
			return nil, fmt.Errorf("claim message %s/%s: %w", queue, name, err)
		}
		if opts.Logger != nil {
			opts.Logger.Debug("claimed message", "queue", queue, "message", name)
		}
		return msg, nil
	}
}

func lostClaim(logger *slog.Logger, observer Observer, queue, name string) {
	observer.ClaimLost(queue)
	if logger != nil {
		logger.Debug("lost claim race, retrying", "queue", queue, "message", name)
	}
}
