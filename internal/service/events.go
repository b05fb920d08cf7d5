package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	apperr "eventcart/internal/errors"
	"eventcart/internal/logger"
	"eventcart/internal/models"
	"eventcart/internal/repository"

	"github.com/google/uuid"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

type EventService struct {
	store repository.Store
	index EventIndex
	cache EventCache
	now   func() time.Time
}

func NewEventService(d Deps) *EventService {
	return &EventService{
		store: d.Store,
		index: d.Index,
		cache: d.Cache,
		now:   d.Now,
	}
}

// NormalizeFilter applies paging defaults and validates the filter.
func NormalizeFilter(f models.EventFilter) (models.EventFilter, error) {
	f.Name = strings.TrimSpace(f.Name)
	f.City = strings.TrimSpace(f.City)
	if f.Page < 0 {
		f.Page = 0
	}
	if f.Size <= 0 {
		f.Size = DefaultPageSize
	}
	if f.Size > MaxPageSize {
		f.Size = MaxPageSize
	}
	if f.Type != "" && !f.Type.Valid() {
		return f, apperr.New(apperr.ValidationFailed, fmt.Sprintf("unknown event type %q", f.Type))
	}
	if f.From != nil && f.To != nil && f.To.Before(*f.From) {
		return f, apperr.New(apperr.ValidationFailed, "'to' is before 'from'")
	}
	return f, nil
}

// Search returns a page of events. The index only selects ids; capacities
// always come from the store.
func (s *EventService) Search(ctx context.Context, filter models.EventFilter) (*models.Page[models.Event], error) {
	filter, err := NormalizeFilter(filter)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if page, ok := s.cache.GetPage(ctx, filter); ok {
			return page, nil
		}
	}

	page, err := s.search(ctx, filter)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		s.cache.SetPage(ctx, filter, page)
	}
	return page, nil
}

func (s *EventService) search(ctx context.Context, filter models.EventFilter) (*models.Page[models.Event], error) {
	repos := s.store.Repos()

	if s.index != nil {
		ids, total, err := s.index.Search(ctx, filter)
		if err == nil {
			events, err := repos.Events.GetMany(ctx, ids)
			if err != nil {
				return nil, storageError(err, "failed to load events")
			}
			return &models.Page[models.Event]{Items: events, Total: total, Page: filter.Page, Size: filter.Size}, nil
		}
		logger.WithContext(ctx).Warn("Search index failed, falling back to database", "error", err)
	}

	events, total, err := repos.Events.Search(ctx, filter)
	if err != nil {
		return nil, storageError(err, "failed to search events")
	}
	return &models.Page[models.Event]{Items: events, Total: total, Page: filter.Page, Size: filter.Size}, nil
}

func (s *EventService) Get(ctx context.Context, id string) (*models.Event, error) {
	event, err := s.store.Repos().Events.GetByID(ctx, id)
	if err != nil {
		return nil, storageError(err, "failed to get event")
	}
	if event == nil {
		return nil, apperr.New(apperr.EventNotFound, "event not found")
	}
	return event, nil
}

func validateEvent(req *models.EventRequest) error {
	if !req.Type.Valid() {
		return apperr.New(apperr.EventInvalid, fmt.Sprintf("unknown event type %q", req.Type))
	}
	if len(req.Localities) == 0 {
		return apperr.New(apperr.EventInvalid, "event needs at least one locality")
	}
	seen := make(map[string]bool, len(req.Localities))
	for _, l := range req.Localities {
		name := strings.TrimSpace(l.Name)
		if name == "" {
			return apperr.New(apperr.EventInvalid, "locality name is required")
		}
		if seen[name] {
			return apperr.New(apperr.EventInvalid, fmt.Sprintf("duplicate locality %q", name))
		}
		seen[name] = true
		if l.Price == nil || l.Price.IsNegative() {
			return apperr.New(apperr.EventInvalid, fmt.Sprintf("locality %q needs a non-negative price", name))
		}
		if l.TotalCapacity <= 0 {
			return apperr.New(apperr.EventInvalid, fmt.Sprintf("locality %q needs a positive capacity", name))
		}
	}
	return nil
}

func applyEventRequest(event *models.Event, req *models.EventRequest) {
	event.Name = strings.TrimSpace(req.Name)
	event.City = strings.TrimSpace(req.City)
	event.Address = req.Address
	event.EventDate = req.EventDate.UTC()
	event.ImageURL = req.ImageURL
	event.Type = req.Type
	if req.AvailableForPurchase != nil {
		event.AvailableForPurchase = req.AvailableForPurchase.Bool()
	}
}

// Create adds a new event with full localities.
func (s *EventService) Create(ctx context.Context, req *models.EventRequest) (*models.Event, error) {
	if err := validateEvent(req); err != nil {
		return nil, err
	}
	now := s.now()

	event := &models.Event{
		ID:                   uuid.New().String(),
		AvailableForPurchase: true,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	applyEventRequest(event, req)
	for _, l := range req.Localities {
		event.Localities = append(event.Localities, models.Locality{
			Name:              strings.TrimSpace(l.Name),
			Price:             *l.Price,
			RemainingCapacity: l.TotalCapacity,
			TotalCapacity:     l.TotalCapacity,
		})
	}
	event.RecountAvailable()

	if err := s.store.Repos().Events.Save(ctx, event); err != nil {
		return nil, storageError(err, "failed to create event")
	}

	logger.WithContext(ctx).Info("Event created", "event_id", event.ID, "name", event.Name)
	s.afterWrite(ctx, event)
	return event, nil
}

// Update replaces event details and localities. Tickets already sold stay
// sold: a locality keeps totalCapacity-remainingCapacity taken seats.
func (s *EventService) Update(ctx context.Context, id string, req *models.EventRequest) (*models.Event, error) {
	if err := validateEvent(req); err != nil {
		return nil, err
	}

	var updated *models.Event
	err := s.store.WithinTx(ctx, func(ctx context.Context, r *repository.Repositories) error {
		event, err := r.Events.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if event == nil {
			return apperr.New(apperr.EventNotFound, "event not found")
		}

		sold := make(map[string]int, len(event.Localities))
		for _, l := range event.Localities {
			sold[l.Name] = l.TotalCapacity - l.RemainingCapacity
		}

		localities := make([]models.Locality, 0, len(req.Localities))
		for _, l := range req.Localities {
			name := strings.TrimSpace(l.Name)
			taken := sold[name]
			if l.TotalCapacity < taken {
				return apperr.New(apperr.EventInvalid,
					fmt.Sprintf("locality %q already has %d tickets taken", name, taken))
			}
			delete(sold, name)
			localities = append(localities, models.Locality{
				Name:              name,
				Price:             *l.Price,
				RemainingCapacity: l.TotalCapacity - taken,
				TotalCapacity:     l.TotalCapacity,
			})
		}
		for name, taken := range sold {
			if taken > 0 {
				return apperr.New(apperr.EventInvalid,
					fmt.Sprintf("locality %q cannot be removed, %d tickets taken", name, taken))
			}
		}

		applyEventRequest(event, req)
		event.Localities = localities
		event.RecountAvailable()
		event.UpdatedAt = s.now()

		if err := r.Events.Save(ctx, event); err != nil {
			return err
		}
		updated = event
		return nil
	})
	if err != nil {
		return nil, storageError(err, "failed to update event")
	}

	logger.WithContext(ctx).Info("Event updated", "event_id", updated.ID)
	s.afterWrite(ctx, updated)
	return updated, nil
}

// Delete removes an event nobody holds tickets for. Reserved or sold
// tickets keep the event alive so carts can still be canceled or paid.
func (s *EventService) Delete(ctx context.Context, id string) error {
	err := s.store.WithinTx(ctx, func(ctx context.Context, r *repository.Repositories) error {
		event, err := r.Events.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if event == nil {
			return apperr.New(apperr.EventNotFound, "event not found")
		}
		if err := checkNoTicketsTaken(event); err != nil {
			return err
		}
		_, err = r.Events.Delete(ctx, id)
		return err
	})
	if err != nil {
		return storageError(err, "failed to delete event")
	}

	s.afterDelete(ctx, id)
	logger.WithContext(ctx).Info("Event deleted", "event_id", id)
	return nil
}

// DeleteAll removes every event, or none if any of them has tickets taken.
func (s *EventService) DeleteAll(ctx context.Context) (int, error) {
	var ids []string
	err := s.store.WithinTx(ctx, func(ctx context.Context, r *repository.Repositories) error {
		ids = ids[:0]
		events, err := r.Events.ListAll(ctx)
		if err != nil {
			return err
		}
		for i := range events {
			if err := checkNoTicketsTaken(&events[i]); err != nil {
				return err
			}
		}
		for _, e := range events {
			if _, err := r.Events.Delete(ctx, e.ID); err != nil {
				return err
			}
			ids = append(ids, e.ID)
		}
		return nil
	})
	if err != nil {
		return 0, storageError(err, "failed to delete events")
	}

	s.afterDelete(ctx, ids...)
	logger.WithContext(ctx).Info("All events deleted", "count", len(ids))
	return len(ids), nil
}

func checkNoTicketsTaken(event *models.Event) error {
	for _, l := range event.Localities {
		if taken := l.TotalCapacity - l.RemainingCapacity; taken > 0 {
			return apperr.New(apperr.EventInvalid,
				fmt.Sprintf("event %q has %d tickets taken in locality %q", event.Name, taken, l.Name))
		}
	}
	return nil
}

func (s *EventService) afterDelete(ctx context.Context, ids ...string) {
	if s.index != nil {
		for _, id := range ids {
			if err := s.index.DeleteEvent(ctx, id); err != nil {
				logger.WithContext(ctx).Error("Failed to remove event from index", "event_id", id, "error", err)
			}
		}
	}
	if s.cache != nil {
		s.cache.Invalidate(ctx)
	}
}

// Reindex pushes every stored event into the search index.
func (s *EventService) Reindex(ctx context.Context) (int, error) {
	if s.index == nil {
		return 0, apperr.New(apperr.ValidationFailed, "search index is disabled")
	}
	events, err := s.store.Repos().Events.ListAll(ctx)
	if err != nil {
		return 0, storageError(err, "failed to list events")
	}

	n := 0
	for i := range events {
		if err := s.index.IndexEvent(ctx, &events[i]); err != nil {
			return n, apperr.Wrap(apperr.Internal, "failed to index event", err)
		}
		n++
	}
	if s.cache != nil {
		s.cache.Invalidate(ctx)
	}
	return n, nil
}

func (s *EventService) afterWrite(ctx context.Context, event *models.Event) {
	if s.index != nil {
		if err := s.index.IndexEvent(ctx, event); err != nil {
			logger.WithContext(ctx).Error("Failed to index event", "event_id", event.ID, "error", err)
		}
	}
	if s.cache != nil {
		s.cache.Invalidate(ctx)
	}
}
