package application

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dfryer1193/evstations/shared/metrics"
	"github.com/dfryer1193/evstations/station/domain"
	"github.com/rs/zerolog/log"
)

// Sweeper reconciles the image store with the station repository. It removes
// blobs that no station references once both the blob and its last reference
// change are older than the grace period, and reports stations whose image
// blob is missing.
type Sweeper struct {
	repo     domain.StationRepository
	images   domain.ImageStore
	locks    *imageLocks
	grace    time.Duration
	interval time.Duration
	now      func() time.Time

	// Sweeper lifecycle context - cancelled when Close() is called
	ctx    context.Context
	cancel context.CancelFunc
	wg     *sync.WaitGroup
}

// SweepResult summarises one reconciliation pass.
type SweepResult struct {
	Removed        []string
	MissingImages  map[int64]string
	BlobsInspected int
}

// NewSweeper returns a sweeper over the stores of service. It shares the
// service's image locks so it never removes a blob a write is about to reference.
func NewSweeper(service *StationService, interval, grace time.Duration) *Sweeper {
	ctx, cancel := context.WithCancel(context.Background())
	return &Sweeper{
		repo:     service.repo,
		images:   service.images,
		locks:    service.locks,
		grace:    grace,
		interval: interval,
		now:      time.Now,
		ctx:      ctx,
		cancel:   cancel,
		wg:       &sync.WaitGroup{},
	}
}

// Start runs a sweep immediately and then on every interval until Close is called.
// A zero interval disables periodic sweeping.
func (s *Sweeper) Start() {
	if s.interval <= 0 {
		log.Info().Msg("Image sweeper disabled")
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			if _, err := s.Sweep(s.ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("Image sweep failed")
			}

			select {
			case <-s.ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
}

// Close stops the background sweep and waits for an in-flight pass to finish.
func (s *Sweeper) Close() error {
	s.cancel()
	s.wg.Wait()
	return nil
}

// Sweep performs a single reconciliation pass.
func (s *Sweeper) Sweep(ctx context.Context) (*SweepResult, error) {
	blobs, err := s.images.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list image blobs: %w", err)
	}

	result := &SweepResult{
		MissingImages:  make(map[int64]string),
		BlobsInspected: len(blobs),
	}
	present := make(map[string]struct{}, len(blobs))
	cutoff := s.now().Add(-s.grace)

	for _, blob := range blobs {
		present[blob.Key] = struct{}{}

		if blob.ModTime.After(cutoff) {
			continue
		}

		removed, err := s.reclaim(ctx, blob.Key, cutoff)
		if err != nil {
			return result, err
		}
		if removed {
			delete(present, blob.Key)
			result.Removed = append(result.Removed, blob.Key)
		}
	}

	stations, err := s.repo.FindAll(ctx)
	if err != nil {
		return result, fmt.Errorf("failed to list stations: %w", err)
	}
	for _, station := range stations {
		key := domain.ImageKeyFromRef(station.ImageRef)
		if key == "" {
			continue
		}
		if _, ok := present[key]; !ok {
			result.MissingImages[station.ID] = key
			log.Warn().Int64("stationID", station.ID).Str("imageKey", key).Msg("Station references a missing image")
		}
	}

	if len(result.Removed) > 0 || len(result.MissingImages) > 0 {
		log.Info().
			Int("inspected", result.BlobsInspected).
			Int("removed", len(result.Removed)).
			Int("missing", len(result.MissingImages)).
			Msg("Image sweep finished")
	}
	return result, nil
}

// reclaim removes the blob under key if, while holding its lock, it is still
// unreferenced and neither the blob nor its last reference change is newer than cutoff.
func (s *Sweeper) reclaim(ctx context.Context, key string, cutoff time.Time) (bool, error) {
	unlock := s.locks.lock(key)
	defer unlock()

	// the listing may be stale; a concurrent write refreshes the mtime
	info, err := s.images.Stat(ctx, key)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if info.ModTime.After(cutoff) {
		return false, nil
	}

	usage, err := s.repo.ImageUsage(ctx, key)
	if err != nil {
		return false, err
	}
	if usage.References > 0 || usage.UpdatedAt.After(cutoff) {
		return false, nil
	}

	if err := s.images.Delete(ctx, key); err != nil && !errors.Is(err, domain.ErrNotFound) {
		return false, fmt.Errorf("failed to remove unreferenced image %s: %w", key, err)
	}
	if _, err := s.repo.PruneImage(ctx, key); err != nil {
		log.Warn().Err(err).Str("imageKey", key).Msg("Failed to prune image reference row")
	}

	metrics.IncSweeperRemoved()
	log.Debug().Str("imageKey", key).Msg("Removed unreferenced image")
	return true, nil
}
