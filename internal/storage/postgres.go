package storage

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"

	"github.com/lib/pq"

	"smokealert/internal/logger"
	"smokealert/internal/models"
)

var tableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Postgres is a Journal backed by a single postgres table
type Postgres struct {
	db    *sql.DB
	table string
}

// OpenPostgres connects with lib/pq and makes sure the journal table exists
func OpenPostgres(ctx context.Context, dsn, table string) (*Postgres, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	p, err := NewPostgres(db, table)
	if err != nil {
		db.Close()
		return nil, err
	}
	if err := p.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return p, nil
}

// NewPostgres wraps an existing connection
func NewPostgres(db *sql.DB, table string) (*Postgres, error) {
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("invalid journal table name %q", table)
	}
	return &Postgres{db: db, table: table}, nil
}

// EnsureSchema creates the journal table
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS `+p.table+` (
	id          TEXT PRIMARY KEY,
	cycle_id    TEXT NOT NULL,
	channel_id  TEXT NOT NULL,
	priority    TEXT NOT NULL,
	title       TEXT NOT NULL,
	message     TEXT NOT NULL,
	threshold   INTEGER NOT NULL,
	sensors     TEXT[] NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL
)`)
	if err != nil {
		return fmt.Errorf("create journal table: %w", err)
	}
	return nil
}

func (p *Postgres) Publish(ctx context.Context, alert *models.Alert) error {
	return p.PublishBatch(ctx, []*models.Alert{alert})
}

// PublishBatch inserts alerts in one statement, ignoring ids already journaled
func (p *Postgres) PublishBatch(ctx context.Context, alerts []*models.Alert) error {
	if len(alerts) == 0 {
		return nil
	}

	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(p.table)
	b.WriteString(" (id, cycle_id, channel_id, priority, title, message, threshold, sensors, created_at) VALUES ")

	const cols = 9
	args := make([]any, 0, len(alerts)*cols)
	for i, a := range alerts {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString("(")
		for c := 1; c <= cols; c++ {
			if c > 1 {
				b.WriteString(",")
			}
			fmt.Fprintf(&b, "$%d", len(args)+c)
		}
		b.WriteString(")")

		args = append(args,
			a.ID,
			a.CycleID,
			a.ChannelID,
			string(a.Priority),
			a.Title,
			a.Message,
			a.Threshold,
			pq.Array(a.Sensors),
			a.CreatedAt,
		)
	}
	b.WriteString(" ON CONFLICT (id) DO NOTHING")

	if _, err := p.db.ExecContext(ctx, b.String(), args...); err != nil {
		return fmt.Errorf("journal %d alerts: %w", len(alerts), err)
	}

	log := logger.WithComponent("journal")
	log.Debug().Int("count", len(alerts)).Str("table", p.table).Msg("alerts journaled")
	return nil
}

func (p *Postgres) Close() error {
	return p.db.Close()
}

var _ Journal = (*Postgres)(nil)
