package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"eventcart/internal/models"

	"github.com/lib/pq"
)

type EventRepository struct {
	db Querier
}

func NewEventRepository(db Querier) *EventRepository {
	return &EventRepository{db: db}
}

const eventColumns = `id, name, city, address, event_date, image_url, event_type,
		       available_for_purchase, total_available_places, created_at, updated_at`

func scanEvent(row interface{ Scan(...any) error }, event *models.Event) error {
	return row.Scan(
		&event.ID,
		&event.Name,
		&event.City,
		&event.Address,
		&event.EventDate,
		&event.ImageURL,
		&event.Type,
		&event.AvailableForPurchase,
		&event.TotalAvailablePlaces,
		&event.CreatedAt,
		&event.UpdatedAt,
	)
}

func (r *EventRepository) GetByID(ctx context.Context, id string) (*models.Event, error) {
	event := &models.Event{}
	query := `SELECT ` + eventColumns + ` FROM events WHERE id = $1`

	err := scanEvent(r.db.QueryRowContext(ctx, query, id), event)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if err := r.loadLocalities(ctx, []*models.Event{event}); err != nil {
		return nil, err
	}
	return event, nil
}

// GetMany returns the events in the order of ids; unknown ids are skipped.
func (r *EventRepository) GetMany(ctx context.Context, ids []string) ([]models.Event, error) {
	if len(ids) == 0 {
		return []models.Event{}, nil
	}

	query := `SELECT ` + eventColumns + ` FROM events WHERE id = ANY($1)`
	events, err := r.queryEvents(ctx, query, pq.Array(ids))
	if err != nil {
		return nil, err
	}

	byID := make(map[string]models.Event, len(events))
	for _, e := range events {
		byID[e.ID] = e
	}
	ordered := make([]models.Event, 0, len(events))
	for _, id := range ids {
		if e, ok := byID[id]; ok {
			ordered = append(ordered, e)
		}
	}
	return ordered, nil
}

func (r *EventRepository) Search(ctx context.Context, filter models.EventFilter) ([]models.Event, int64, error) {
	var where []string
	var args []any
	argIndex := 1

	if filter.Name != "" {
		where = append(where, fmt.Sprintf("name ILIKE $%d", argIndex))
		args = append(args, "%"+escapeLike(filter.Name)+"%")
		argIndex++
	}
	if filter.City != "" {
		where = append(where, fmt.Sprintf("city ILIKE $%d", argIndex))
		args = append(args, "%"+escapeLike(filter.City)+"%")
		argIndex++
	}
	if filter.From != nil {
		where = append(where, fmt.Sprintf("event_date >= $%d", argIndex))
		args = append(args, *filter.From)
		argIndex++
	}
	if filter.To != nil {
		where = append(where, fmt.Sprintf("event_date <= $%d", argIndex))
		args = append(args, *filter.To)
		argIndex++
	}
	if filter.Type != "" {
		where = append(where, fmt.Sprintf("event_type = $%d", argIndex))
		args = append(args, filter.Type)
		argIndex++
	}

	whereSQL := ""
	if len(where) > 0 {
		whereSQL = " WHERE " + strings.Join(where, " AND ")
	}

	var total int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events`+whereSQL, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + eventColumns + ` FROM events` + whereSQL +
		fmt.Sprintf(" ORDER BY event_date ASC, name ASC LIMIT $%d OFFSET $%d", argIndex, argIndex+1)
	args = append(args, filter.Size, filter.Offset())

	events, err := r.queryEvents(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return events, total, nil
}

func (r *EventRepository) ListAll(ctx context.Context) ([]models.Event, error) {
	return r.queryEvents(ctx, `SELECT `+eventColumns+` FROM events ORDER BY event_date ASC, name ASC`)
}

func (r *EventRepository) queryEvents(ctx context.Context, query string, args ...any) ([]models.Event, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := []models.Event{}
	for rows.Next() {
		var event models.Event
		if err := scanEvent(rows, &event); err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	ptrs := make([]*models.Event, len(events))
	for i := range events {
		ptrs[i] = &events[i]
	}
	if err := r.loadLocalities(ctx, ptrs); err != nil {
		return nil, err
	}
	return events, nil
}

func (r *EventRepository) loadLocalities(ctx context.Context, events []*models.Event) error {
	if len(events) == 0 {
		return nil
	}

	ids := make([]string, len(events))
	byID := make(map[string]*models.Event, len(events))
	for i, e := range events {
		ids[i] = e.ID
		byID[e.ID] = e
		e.Localities = []models.Locality{}
	}

	query := `
		SELECT event_id, name, price, remaining_capacity, total_capacity
		FROM localities
		WHERE event_id = ANY($1)
		ORDER BY event_id, position`

	rows, err := r.db.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var eventID string
		var l models.Locality
		if err := rows.Scan(&eventID, &l.Name, &l.Price, &l.RemainingCapacity, &l.TotalCapacity); err != nil {
			return err
		}
		if e, ok := byID[eventID]; ok {
			e.Localities = append(e.Localities, l)
		}
	}
	return rows.Err()
}

// Save upserts the event row and replaces its locality set.
func (r *EventRepository) Save(ctx context.Context, event *models.Event) error {
	now := time.Now()
	if event.CreatedAt.IsZero() {
		event.CreatedAt = now
	}
	event.UpdatedAt = now
	event.RecountAvailable()

	query := `
		INSERT INTO events (id, name, city, address, event_date, image_url, event_type,
		                    available_for_purchase, total_available_places, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name, city = EXCLUDED.city, address = EXCLUDED.address,
		    event_date = EXCLUDED.event_date, image_url = EXCLUDED.image_url,
		    event_type = EXCLUDED.event_type, available_for_purchase = EXCLUDED.available_for_purchase,
		    total_available_places = EXCLUDED.total_available_places, updated_at = EXCLUDED.updated_at`

	_, err := r.db.ExecContext(ctx, query,
		event.ID,
		event.Name,
		event.City,
		event.Address,
		event.EventDate,
		event.ImageURL,
		event.Type,
		event.AvailableForPurchase,
		event.TotalAvailablePlaces,
		event.CreatedAt,
		event.UpdatedAt,
	)
	if err != nil {
		return err
	}

	names := make([]string, len(event.Localities))
	for i, l := range event.Localities {
		names[i] = l.Name
	}
	if _, err := r.db.ExecContext(ctx,
		`DELETE FROM localities WHERE event_id = $1 AND NOT (name = ANY($2))`,
		event.ID, pq.Array(names)); err != nil {
		return err
	}

	upsert := `
		INSERT INTO localities (event_id, name, position, price, remaining_capacity, total_capacity)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (event_id, name) DO UPDATE
		SET position = EXCLUDED.position, price = EXCLUDED.price,
		    remaining_capacity = EXCLUDED.remaining_capacity, total_capacity = EXCLUDED.total_capacity`

	for i, l := range event.Localities {
		if _, err := r.db.ExecContext(ctx, upsert,
			event.ID, l.Name, i, l.Price, l.RemainingCapacity, l.TotalCapacity); err != nil {
			return err
		}
	}
	return nil
}

func (r *EventRepository) Delete(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM events WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r *EventRepository) AdjustLocalityCapacity(ctx context.Context, eventID, localityName string, delta int) error {
	query := `
		UPDATE localities
		SET remaining_capacity = remaining_capacity + $3
		WHERE event_id = $1 AND name = $2
		  AND remaining_capacity + $3 >= 0
		  AND remaining_capacity + $3 <= total_capacity`

	res, err := r.db.ExecContext(ctx, query, eventID, localityName, delta)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}

	if n == 0 {
		var exists bool
		err := r.db.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM localities WHERE event_id = $1 AND name = $2)`,
			eventID, localityName).Scan(&exists)
		if err != nil {
			return err
		}
		if !exists {
			return ErrLocalityNotFound
		}
		if delta < 0 {
			return ErrInsufficientCapacity
		}
		return ErrCapacityOverflow
	}

	_, err = r.db.ExecContext(ctx, `
		UPDATE events
		SET total_available_places = (
		        SELECT COALESCE(SUM(remaining_capacity), 0) FROM localities WHERE event_id = $1)
		WHERE id = $1`, eventID)
	return err
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
