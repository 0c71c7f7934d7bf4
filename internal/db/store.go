package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hvac_dispatch/backend/internal/models"
)

// exclusion_violation, raised by the service_jobs overlap constraint.
const pgExclusionViolation = "23P01"

type Store struct {
	Pool *pgxpool.Pool
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &Store{Pool: pool}, nil
}

func (s *Store) Close() {
	s.Pool.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.Pool.Ping(ctx)
}

func (s *Store) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

const technicianColumns = `id, name, status, skills, region, address, lat, lon, work_start, work_end, weekly_capacity_hours, updated_at`

func scanTechnician(row pgx.Row) (models.Technician, error) {
	var (
		t       models.Technician
		region  *string
		address *string
		lat     *float64
		lon     *float64
	)
	err := row.Scan(&t.ID, &t.Name, &t.Status, &t.Skills, &region, &address, &lat, &lon,
		&t.WorkingHours.Start, &t.WorkingHours.End, &t.WeeklyCapacityHours, &t.UpdatedAt)
	if err != nil {
		return models.Technician{}, err
	}
	if region != nil || address != nil || lat != nil {
		t.Location = &models.Location{Lat: lat, Lon: lon, Region: derefString(region), Address: derefString(address)}
	}
	return t, nil
}

func (s *Store) queryTechnicians(ctx context.Context, query string, args ...any) ([]models.Technician, error) {
	rows, err := s.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Technician
	for rows.Next() {
		t, err := scanTechnician(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) ListTechnicians(ctx context.Context) ([]models.Technician, error) {
	return s.queryTechnicians(ctx, `SELECT `+technicianColumns+` FROM technicians ORDER BY id ASC`)
}

func (s *Store) ListAvailableTechnicians(ctx context.Context, excludeIDs []string) ([]models.Technician, error) {
	query := `SELECT ` + technicianColumns + ` FROM technicians WHERE status = $1`
	args := []any{models.TechnicianAvailable}
	if len(excludeIDs) > 0 {
		args = append(args, excludeIDs)
		query += fmt.Sprintf(" AND NOT (id = ANY($%d))", len(args))
	}
	query += " ORDER BY id ASC"
	return s.queryTechnicians(ctx, query, args...)
}

func (s *Store) GetTechnician(ctx context.Context, id string) (models.Technician, error) {
	row := s.Pool.QueryRow(ctx, `SELECT `+technicianColumns+` FROM technicians WHERE id = $1`, id)
	t, err := scanTechnician(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Technician{}, fmt.Errorf("technician %s: %w", id, models.ErrNotFound)
	}
	return t, err
}

func (s *Store) UpsertTechnician(ctx context.Context, tx pgx.Tx, t models.Technician) error {
	var loc models.Location
	if t.Location != nil {
		loc = *t.Location
	}
	_, err := tx.Exec(ctx, `
		INSERT INTO technicians (`+technicianColumns+`)
		VALUES ($1,$2,$3,$4,NULLIF($5,''),NULLIF($6,''),$7,$8,$9,$10,$11,NOW())
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			status = EXCLUDED.status,
			skills = EXCLUDED.skills,
			region = EXCLUDED.region,
			address = EXCLUDED.address,
			lat = EXCLUDED.lat,
			lon = EXCLUDED.lon,
			work_start = EXCLUDED.work_start,
			work_end = EXCLUDED.work_end,
			weekly_capacity_hours = EXCLUDED.weekly_capacity_hours,
			updated_at = NOW()
	`, t.ID, t.Name, t.Status, nonNil(t.Skills), loc.Region, loc.Address, loc.Lat, loc.Lon,
		t.WorkingHours.Start, t.WorkingHours.End, t.WeeklyCapacityHours)
	return err
}

const jobColumns = `id, customer_id, title, required_skills, priority, estimated_duration_minutes,
	scheduled_start, scheduled_end, assigned_technician_id, status, region, address, lat, lon,
	cancel_reason, created_at, updated_at`

func scanJob(row pgx.Row) (models.ServiceJob, error) {
	var j models.ServiceJob
	err := row.Scan(&j.ID, &j.CustomerID, &j.Title, &j.RequiredSkills, &j.Priority, &j.EstimatedDurationMinutes,
		&j.ScheduledStart, &j.ScheduledEnd, &j.AssignedTechnicianID, &j.Status,
		&j.Location.Region, &j.Location.Address, &j.Location.Lat, &j.Location.Lon,
		&j.CancelReason, &j.CreatedAt, &j.UpdatedAt)
	return j, err
}

func (s *Store) GetJob(ctx context.Context, id string) (models.ServiceJob, error) {
	row := s.Pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM service_jobs WHERE id = $1`, id)
	j, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.ServiceJob{}, fmt.Errorf("job %s: %w", id, models.ErrNotFound)
	}
	return j, err
}

func (s *Store) JobsForTechnician(ctx context.Context, technicianID string, from, to time.Time) ([]models.ServiceJob, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT `+jobColumns+`
		FROM service_jobs
		WHERE assigned_technician_id = $1 AND scheduled_start < $3 AND scheduled_end > $2
		ORDER BY scheduled_start ASC, id ASC
	`, technicianID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.ServiceJob
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

func (s *Store) SaveJob(ctx context.Context, j models.ServiceJob) error {
	err := s.WithTx(ctx, func(tx pgx.Tx) error {
		return s.UpsertJob(ctx, tx, j)
	})
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgExclusionViolation {
		return fmt.Errorf("job %s: %w", j.ID, models.ErrOverlap)
	}
	return err
}

func (s *Store) UpsertJob(ctx context.Context, tx pgx.Tx, j models.ServiceJob) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO service_jobs (`+jobColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
		ON CONFLICT (id) DO UPDATE SET
			customer_id = EXCLUDED.customer_id,
			title = EXCLUDED.title,
			required_skills = EXCLUDED.required_skills,
			priority = EXCLUDED.priority,
			estimated_duration_minutes = EXCLUDED.estimated_duration_minutes,
			scheduled_start = EXCLUDED.scheduled_start,
			scheduled_end = EXCLUDED.scheduled_end,
			assigned_technician_id = EXCLUDED.assigned_technician_id,
			status = EXCLUDED.status,
			region = EXCLUDED.region,
			address = EXCLUDED.address,
			lat = EXCLUDED.lat,
			lon = EXCLUDED.lon,
			cancel_reason = EXCLUDED.cancel_reason,
			updated_at = EXCLUDED.updated_at
	`, j.ID, j.CustomerID, j.Title, nonNil(j.RequiredSkills), j.Priority, j.EstimatedDurationMinutes,
		j.ScheduledStart, j.ScheduledEnd, j.AssignedTechnicianID, j.Status,
		j.Location.Region, j.Location.Address, j.Location.Lat, j.Location.Lon,
		j.CancelReason, j.CreatedAt, j.UpdatedAt)
	return err
}

// Import writes a seed into the database in one transaction.
func (s *Store) Import(ctx context.Context, seed Seed) error {
	return s.WithTx(ctx, func(tx pgx.Tx) error {
		for _, t := range seed.Technicians {
			if err := s.UpsertTechnician(ctx, tx, t); err != nil {
				return fmt.Errorf("technician %s: %w", t.ID, err)
			}
		}
		for _, j := range seed.Jobs {
			if err := s.UpsertJob(ctx, tx, j); err != nil {
				return fmt.Errorf("job %s: %w", j.ID, err)
			}
		}
		return nil
	})
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return strings.TrimSpace(*v)
}

func nonNil(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}
