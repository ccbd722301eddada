package application

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/dfryer1193/evstations/shared/metrics"
	"github.com/dfryer1193/evstations/station/domain"
	"github.com/rs/zerolog/log"
)

// StationInput carries the writable fields of a station.
type StationInput struct {
	Name    string
	Price   float64
	Address string
}

func (in StationInput) validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return fmt.Errorf("%w: name is required", domain.ErrInvalidArgument)
	}
	if strings.TrimSpace(in.Address) == "" {
		return fmt.Errorf("%w: address is required", domain.ErrInvalidArgument)
	}
	if math.IsNaN(in.Price) || math.IsInf(in.Price, 0) || in.Price < 0 {
		return fmt.Errorf("%w: price must be a non-negative number", domain.ErrInvalidArgument)
	}
	return nil
}

// StationService orchestrates the station repository and the image store.
//
// Writes touch two stores without a shared transaction. Images are always
// written before a record references them and deleted before the record
// that owns them is removed; a failure between the two steps is logged and
// returned, and the sweeper reclaims blobs left without references. Both
// steps run under a per-key lock shared with the sweeper, so a blob is never
// reclaimed between being stored and being referenced.
type StationService struct {
	repo   domain.StationRepository
	images domain.ImageStore
	locks  *imageLocks
}

func NewStationService(repo domain.StationRepository, images domain.ImageStore) *StationService {
	return &StationService{
		repo:   repo,
		images: images,
		locks:  newImageLocks(),
	}
}

func observe(op string, start time.Time, err *error) {
	metrics.ObserveOperation(op, *err, time.Since(start))
}

func (s *StationService) ListAll(ctx context.Context) (stations []*domain.Station, err error) {
	defer observe("list_all", time.Now(), &err)
	return s.repo.FindAll(ctx)
}

// ListLimited returns the first limit stations by name. A negative limit is rejected
// with domain.ErrInvalidArgument; zero yields an empty list.
func (s *StationService) ListLimited(ctx context.Context, limit int) (stations []*domain.Station, err error) {
	defer observe("list_limited", time.Now(), &err)

	if limit < 0 {
		return nil, fmt.Errorf("%w: limit cannot be negative, got %d", domain.ErrInvalidArgument, limit)
	}
	return s.repo.FindAllOrderedByName(ctx, limit)
}

// ListSorted resolves direction and field through ResolveOrder and lists every station in that order.
func (s *StationService) ListSorted(ctx context.Context, direction, field string) (stations []*domain.Station, err error) {
	defer observe("list_sorted", time.Now(), &err)
	return s.repo.FindAllSorted(ctx, ResolveOrder(direction, field))
}

// GetByID returns nil without error when the station does not exist.
func (s *StationService) GetByID(ctx context.Context, id int64) (station *domain.Station, err error) {
	defer observe("get", time.Now(), &err)
	return s.repo.FindByID(ctx, id)
}

// GetImage returns the bytes stored under key. Absent and malformed keys yield domain.ErrImageMissing.
func (s *StationService) GetImage(ctx context.Context, key string) (content []byte, err error) {
	defer observe("get_image", time.Now(), &err)

	content, err = s.images.Get(ctx, key)
	if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrInvalidArgument) {
		return nil, fmt.Errorf("%w: %s", domain.ErrImageMissing, key)
	}
	if err != nil {
		return nil, err
	}
	return content, nil
}

// Create stores image, then inserts a station referencing it.
func (s *StationService) Create(ctx context.Context, in StationInput, image []byte) (station *domain.Station, err error) {
	defer observe("create", time.Now(), &err)

	if err := in.validate(); err != nil {
		return nil, err
	}
	if len(image) == 0 {
		return nil, fmt.Errorf("%w: image is required", domain.ErrInvalidArgument)
	}

	unlock := s.locks.lock(domain.ContentKey(image))
	defer unlock()

	key, err := s.storeImage(ctx, image)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrCreation, err)
	}

	station, err = s.repo.Save(ctx, &domain.Station{
		Name:     in.Name,
		Price:    in.Price,
		Address:  in.Address,
		ImageRef: domain.NormalizeImageRef(key),
	})
	if err != nil {
		log.Error().Err(err).Str("imageKey", key).Msg("Image stored but station was not persisted")
		return nil, fmt.Errorf("%w: %w", domain.ErrCreation, err)
	}

	log.Info().Int64("stationID", station.ID).Str("imageKey", key).Msg("Station created")
	return station, nil
}

// Update replaces the station at id with in.
//
// With a non-empty image the new image is stored and the station is saved at id
// without first checking that id exists. Without an image the existing station's
// image reference is reused, and a missing station fails with an error matching
// both domain.ErrUpdate and domain.ErrNotFound. The previous image is not deleted.
func (s *StationService) Update(ctx context.Context, id int64, in StationInput, image []byte) (station *domain.Station, err error) {
	defer observe("update", time.Now(), &err)

	if id <= 0 {
		return nil, fmt.Errorf("%w: station id must be positive, got %d", domain.ErrInvalidArgument, id)
	}
	if err := in.validate(); err != nil {
		return nil, err
	}

	var imageRef string
	if len(image) > 0 {
		unlock := s.locks.lock(domain.ContentKey(image))
		defer unlock()

		key, err := s.storeImage(ctx, image)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrUpdate, err)
		}
		imageRef = key
	} else {
		existing, err := s.repo.FindByID(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrUpdate, err)
		}
		if existing == nil {
			return nil, fmt.Errorf("%w: station %d: %w", domain.ErrUpdate, id, domain.ErrNotFound)
		}
		imageRef = existing.ImageRef
	}

	if imageRef != "" {
		imageRef = domain.NormalizeImageRef(imageRef)
	}

	station, err = s.repo.Save(ctx, &domain.Station{
		ID:       id,
		Name:     in.Name,
		Price:    in.Price,
		Address:  in.Address,
		ImageRef: imageRef,
	})
	if err != nil {
		if len(image) > 0 {
			log.Error().Err(err).Int64("stationID", id).Str("imageRef", imageRef).Msg("Image stored but station was not updated")
		}
		return nil, fmt.Errorf("%w: %w", domain.ErrUpdate, err)
	}

	log.Info().Int64("stationID", id).Bool("newImage", len(image) > 0).Msg("Station updated")
	return station, nil
}

// Delete removes the station and, when no other station references it, its image.
// The image is removed first; if that fails the station is left untouched.
func (s *StationService) Delete(ctx context.Context, id int64) (err error) {
	defer observe("delete", time.Now(), &err)

	existing, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if existing == nil {
		return fmt.Errorf("station %d: %w", id, domain.ErrNotFound)
	}

	key := domain.ImageKeyFromRef(existing.ImageRef)
	blobDeleted := false
	if key != "" {
		unlock := s.locks.lock(key)
		defer unlock()

		refs, err := s.repo.ImageReferences(ctx, key)
		if err != nil {
			return err
		}

		if refs <= 1 {
			err := s.images.Delete(ctx, key)
			switch {
			case errors.Is(err, domain.ErrNotFound):
				log.Warn().Int64("stationID", id).Str("imageKey", key).Msg("Station image already missing")
			case err != nil:
				return fmt.Errorf("failed to delete image for station %d: %w", id, err)
			default:
				blobDeleted = true
			}
		} else {
			log.Debug().Int64("stationID", id).Str("imageKey", key).Int("references", refs).Msg("Image shared with other stations, keeping blob")
		}
	}

	if err := s.repo.DeleteByID(ctx, id); err != nil {
		if blobDeleted {
			log.Error().Err(err).Int64("stationID", id).Str("imageKey", key).Msg("Image deleted but station record remains")
		}
		return err
	}

	if blobDeleted {
		if _, err := s.repo.PruneImage(ctx, key); err != nil {
			log.Warn().Err(err).Str("imageKey", key).Msg("Failed to prune image reference row")
		}
	}

	log.Info().Int64("stationID", id).Msg("Station deleted")
	return nil
}

func (s *StationService) storeImage(ctx context.Context, image []byte) (string, error) {
	key, err := s.images.Put(ctx, image)
	if err != nil {
		return "", err
	}
	metrics.AddImageBytes(len(image))
	return key, nil
}
