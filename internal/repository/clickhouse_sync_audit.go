package repository

import (
	"context"
	"database/sql"
	"fmt"

	"GoPredict/internal/domain/models"
	pkgch "GoPredict/pkg/clickhouse"
	applogger "GoPredict/pkg/logger"
)

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// ClickHouseSyncAudit stores one row per pipeline attempt.
type ClickHouseSyncAudit struct {
	db    execer
	table string
	l     *applogger.Logger
}

// NewClickHouseSyncAudit writes to table (database-qualified) through ch.
func NewClickHouseSyncAudit(ch *pkgch.Client, table string, l *applogger.Logger) *ClickHouseSyncAudit {
	return newSyncAudit(ch.DB(), table, l)
}

func newSyncAudit(db execer, table string, l *applogger.Logger) *ClickHouseSyncAudit {
	if l == nil {
		l = applogger.Nop()
	}
	return &ClickHouseSyncAudit{db: db, table: table, l: l}
}

// SchemaStatements returns the DDL for the audit table.
func (s *ClickHouseSyncAudit) SchemaStatements() []string {
	return []string{fmt.Sprintf(`
        CREATE TABLE IF NOT EXISTS %s (
            ts            DateTime64(3, 'UTC'),
            cycle_id      String,
            dataset       LowCardinality(String),
            trigger       LowCardinality(String),
            attempt       UInt8,
            duration_ms   UInt32,
            outcome       LowCardinality(String),
            records       UInt32,
            notifications UInt32,
            error         String
        ) ENGINE = MergeTree
        ORDER BY (dataset, ts)
        TTL toDateTime(ts) + INTERVAL 30 DAY
    `, s.table)}
}

func (s *ClickHouseSyncAudit) RecordAttempt(ctx context.Context, a *models.SyncAttempt) error {
	q := fmt.Sprintf("INSERT INTO %s (ts, cycle_id, dataset, trigger, attempt, duration_ms, outcome, records, notifications, error) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)", s.table)
	_, err := s.db.ExecContext(ctx, q,
		a.StartedAt.UTC(),
		a.CycleID,
		string(a.Dataset),
		string(a.Trigger),
		uint8(a.Attempt),
		uint32(a.Duration.Milliseconds()),
		a.Outcome,
		uint32(a.Records),
		uint32(a.Notifications),
		a.Error,
	)
	if err != nil {
		s.l.Error("clickhouse record_attempt error",
			applogger.String("table", s.table),
			applogger.String("dataset", string(a.Dataset)),
			applogger.Error(err),
		)
		return fmt.Errorf("record attempt: %w", err)
	}
	s.l.Debug("clickhouse record_attempt ok",
		applogger.String("dataset", string(a.Dataset)),
		applogger.String("outcome", a.Outcome),
		applogger.Duration("duration", a.Duration),
	)
	return nil
}

// Close is a no-op; the connection pool belongs to the ClickHouse client.
func (s *ClickHouseSyncAudit) Close() error {
	return nil
}
