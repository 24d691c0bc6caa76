package ledger

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// Postgres stores fine records in one physical table per year-month
// partition (fine_records_YYYYMM).
type Postgres struct {
	pool *pgxpool.Pool
	loc  *time.Location
}

// NewPostgres creates a ledger backed by the given connection string.
func NewPostgres(ctx context.Context, databaseURL string, loc *time.Location) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Postgres{pool: pool, loc: loc}, nil
}

// Close releases the connection pool.
func (p *Postgres) Close() {
	p.pool.Close()
}

// Pool exposes the underlying connection pool so other components (the job
// queue) can share it.
func (p *Postgres) Pool() *pgxpool.Pool {
	return p.pool
}

var partitionPattern = regexp.MustCompile(`^\d{6}$`)

// Append writes one record into the partition's table, creating the table
// first if this is the partition's first record.
func (p *Postgres) Append(ctx context.Context, partition string, rec Record) error {
	if !partitionPattern.MatchString(partition) {
		return fmt.Errorf("invalid partition key %q", partition)
	}

	table := "fine_records_" + partition
	if err := p.ensureTable(ctx, table); err != nil {
		return err
	}

	insert := fmt.Sprintf(`
		INSERT INTO %s (
			ticket,
			violation_type,
			reason,
			amount,
			operator,
			status,
			approvers,
			decided_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, table)

	_, err := p.pool.Exec(ctx, insert,
		rec.Ticket,
		rec.ViolationType,
		rec.Reason,
		rec.Amount,
		rec.Operator,
		rec.Status,
		JoinApprovers(rec.Approvers),
		rec.DecidedAt.In(p.loc),
	)
	if err != nil {
		return fmt.Errorf("failed to append fine record: %w", err)
	}

	log.Info().
		Str("partition", partition).
		Str("ticket", rec.Ticket).
		Msg("fine record appended")
	return nil
}

func (p *Postgres) ensureTable(ctx context.Context, table string) error {
	create := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id BIGSERIAL PRIMARY KEY,
			ticket TEXT NOT NULL,
			violation_type TEXT NOT NULL,
			reason TEXT NOT NULL,
			amount TEXT NOT NULL DEFAULT '',
			operator TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			approvers TEXT NOT NULL,
			decided_at TIMESTAMPTZ NOT NULL
		)
	`, table)

	if _, err := p.pool.Exec(ctx, create); err != nil {
		return fmt.Errorf("failed to ensure partition table %s: %w", table, err)
	}
	return nil
}
