package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"

	d "github.com/fjod/helmet-storefront/domain"
	"github.com/fjod/helmet-storefront/pkg/logger"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
)

var ErrDuplicateEvent = errors.New("journal event already recorded")

// migrationsTable keeps the journal's schema version apart from other tenants of the database.
const migrationsTable = "journal_schema_migrations"

// Config locates the journal database and its migration files.
type Config struct {
	Host          string
	Port          int
	User          string
	Password      string
	DBName        string
	SSLMode       string
	AppName       string
	MigrationsDir string
}

// dsn renders a postgres URL; credentials are escaped so any password survives.
func (c *Config) dsn() string {
	q := url.Values{}
	mode := c.SSLMode
	if mode == "" {
		mode = "disable"
	}
	q.Set("sslmode", mode)
	if c.AppName != "" {
		q.Set("application_name", c.AppName)
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Path:     "/" + c.DBName,
		RawQuery: q.Encode(),
	}
	return u.String()
}

type Repository struct {
	db            *sql.DB
	migrationsDir string
}

type RepoInterface interface {
	Close() error
	Migrate() error
	AppendEvent(ctx context.Context, e *Event) error
	GetUnpublishedEvents(ctx context.Context, limit int) ([]*Event, error)
	MarkEventAsPublished(ctx context.Context, id int64) error
	PrunePublishedEvents(ctx context.Context, before time.Time) (int64, error)
	GetOrderEvents(ctx context.Context, orderID string) ([]*Event, error)
}

// NewRepository opens the pool and waits for one successful round trip.
func NewRepository(ctx context.Context, cfg *Config) (*Repository, error) {
	db, err := sql.Open("postgres", cfg.dsn())
	if err != nil {
		return nil, fmt.Errorf("failed to open journal database: %w", err)
	}
	// writes are one short insert per checkout transition
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(4)
	db.SetConnMaxIdleTime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("journal database unreachable at %s:%d: %w", cfg.Host, cfg.Port, err)
	}

	logger.L().Info().
		Str("host", cfg.Host).
		Str("db", cfg.DBName).
		Str("sslmode", cfg.SSLMode).
		Msg("journal connected to postgres")
	return &Repository{db: db, migrationsDir: cfg.MigrationsDir}, nil
}

// Migrate brings the journal schema up to date. The migrate instance is not closed since that
// would close the shared pool.
func (r *Repository) Migrate() error {
	driver, err := postgres.WithInstance(r.db, &postgres.Config{MigrationsTable: migrationsTable})
	if err != nil {
		return fmt.Errorf("journal migration driver: %w", err)
	}
	m, err := migrate.NewWithDatabaseInstance("file://"+r.migrationsDir, "postgres", driver)
	if err != nil {
		return fmt.Errorf("journal migrations at %s: %w", r.migrationsDir, err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("journal migration failed: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("journal schema version: %w", err)
	}
	if dirty {
		return fmt.Errorf("journal schema version %d is dirty", version)
	}
	logger.L().Info().Uint("version", version).Msg("journal schema ready")
	return nil
}

func (r *Repository) Close() error {
	return r.db.Close()
}

func (r *Repository) AppendEvent(ctx context.Context, e *Event) error {
	query := `INSERT INTO checkout_events
		(event_id, event_type, checkout_key, user_id, order_id, from_step, to_step, reason, payload, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (event_id) DO NOTHING
		RETURNING id`

	err := r.db.QueryRowContext(ctx, query,
		e.EventID,
		e.EventType,
		e.CheckoutKey,
		e.UserID,
		e.OrderID,
		string(e.From),
		string(e.To),
		e.Reason,
		string(e.Payload),
		e.OccurredAt,
	).Scan(&e.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrDuplicateEvent
	}
	if err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

const eventColumns = `id, event_id, event_type, checkout_key, user_id, order_id, from_step, to_step, reason, payload, occurred_at, published`

func scanEvents(rows *sql.Rows) ([]*Event, error) {
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		var (
			e        Event
			from, to string
			raw      []byte
		)
		if err := rows.Scan(&e.ID, &e.EventID, &e.EventType, &e.CheckoutKey, &e.UserID, &e.OrderID,
			&from, &to, &e.Reason, &raw, &e.OccurredAt, &e.Published); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		e.From, e.To = d.CheckoutStep(from), d.CheckoutStep(to)
		e.Payload = raw
		events = append(events, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read events: %w", err)
	}
	return events, nil
}

// GetUnpublishedEvents returns the oldest events not yet handed to the publisher.
func (r *Repository) GetUnpublishedEvents(ctx context.Context, limit int) ([]*Event, error) {
	query := `SELECT ` + eventColumns + ` FROM checkout_events
		WHERE published = FALSE
		ORDER BY id
		LIMIT $1`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query unpublished events: %w", err)
	}
	return scanEvents(rows)
}

func (r *Repository) MarkEventAsPublished(ctx context.Context, id int64) error {
	query := `UPDATE checkout_events SET published = TRUE, published_at = NOW() WHERE id = $1`

	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to mark event %d as published: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to mark event %d as published: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("event %d not found", id)
	}
	return nil
}

// PrunePublishedEvents deletes published events that occurred before the cutoff.
func (r *Repository) PrunePublishedEvents(ctx context.Context, before time.Time) (int64, error) {
	query := `DELETE FROM checkout_events WHERE published = TRUE AND occurred_at < $1`

	res, err := r.db.ExecContext(ctx, query, before)
	if err != nil {
		return 0, fmt.Errorf("failed to prune events: %w", err)
	}
	return res.RowsAffected()
}

// GetOrderEvents returns an order's history, oldest first.
func (r *Repository) GetOrderEvents(ctx context.Context, orderID string) ([]*Event, error) {
	query := `SELECT ` + eventColumns + ` FROM checkout_events
		WHERE order_id = $1
		ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to query order events: %w", err)
	}
	return scanEvents(rows)
}
