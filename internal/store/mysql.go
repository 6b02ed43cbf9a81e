package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"

	"diveops/internal/config"
	"diveops/pkg/contracts/domain"
)

const (
	operationsTable = "dive_operations"
	documentsTable  = "dive_operation_documents"

	readRetryMaxElapsed = 10 * time.Second
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS dive_operations (
		id                   VARCHAR(36)  NOT NULL PRIMARY KEY,
		name                 VARCHAR(200) NULL,
		objective            TEXT         NULL,
		start_date           CHAR(10)     NULL,
		depth                DOUBLE       NULL,
		notes                TEXT         NULL,
		site_id              VARCHAR(64)  NULL,
		team_id              VARCHAR(64)  NULL,
		responsible_party_id VARCHAR(64)  NULL,
		created_at           DATETIME(6)  NOT NULL,
		updated_at           DATETIME(6)  NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS dive_operation_documents (
		operation_id VARCHAR(36) NOT NULL,
		kind         VARCHAR(32) NOT NULL,
		signed_at    DATETIME(6) NOT NULL,
		PRIMARY KEY (operation_id, kind),
		CONSTRAINT fk_documents_operation FOREIGN KEY (operation_id)
			REFERENCES dive_operations (id) ON DELETE CASCADE
	)`,
}

const selectColumns = "id, name, objective, start_date, depth, notes, site_id, team_id, responsible_party_id, created_at, updated_at"

// MySQLStore keeps operation records in MySQL. Reads retry transient
// connection errors; writes are issued once.
type MySQLStore struct {
	db         *sql.DB
	logger     *slog.Logger
	now        func() time.Time
	newBackoff func() backoff.BackOff
}

// OpenMySQL connects to the configured server and waits for it to answer a
// ping, retrying with exponential backoff up to cfg.ConnectTimeout.
func OpenMySQL(ctx context.Context, cfg config.MySQLConfig, logger *slog.Logger) (*MySQLStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	dsn := buildDSN(cfg)
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open mysql connection: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
		db.SetMaxIdleConns(cfg.MaxOpenConns / 2)
	}
	db.SetConnMaxLifetime(5 * time.Minute)

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = cfg.ConnectTimeout
	attempt := 0
	err = backoff.Retry(func() error {
		attempt++
		pingErr := db.PingContext(ctx)
		if pingErr != nil {
			logger.Warn("mysql_ping_failed",
				slog.Int("attempt", attempt),
				slog.String("addr", net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))),
				slog.String("error", pingErr.Error()))
		}
		return pingErr
	}, backoff.WithContext(bo, ctx))
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to mysql at %s:%d: %w", cfg.Host, cfg.Port, err)
	}

	logger.Info("store_opened",
		slog.String("driver", config.StoreDriverMySQL),
		slog.String("database", cfg.Database),
		slog.Int("attempts", attempt))
	return newMySQLStore(db, logger), nil
}

func newMySQLStore(db *sql.DB, logger *slog.Logger) *MySQLStore {
	return &MySQLStore{
		db:     db,
		logger: logger.With(slog.String("component", "mysql_store")),
		now:    func() time.Time { return time.Now().UTC() },
		newBackoff: func() backoff.BackOff {
			bo := backoff.NewExponentialBackOff()
			bo.MaxElapsedTime = readRetryMaxElapsed
			return bo
		},
	}
}

func buildDSN(cfg config.MySQLConfig) string {
	mc := mysql.NewConfig()
	mc.User = cfg.User
	mc.Passwd = cfg.Password
	mc.Net = "tcp"
	mc.Addr = net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	mc.DBName = cfg.Database
	mc.ParseTime = true
	mc.Loc = time.UTC
	mc.Timeout = cfg.ConnectTimeout
	// report matched rather than changed rows so UpdateRecord can detect a missing id
	mc.ClientFoundRows = true
	return mc.FormatDSN()
}

// EnsureSchema creates the tables if they do not exist
func (s *MySQLStore) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}

// isRetryableError reports whether err is a transient connection failure
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, mysql.ErrInvalidConn) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, transient := range []string{
		"driver: bad connection",
		"invalid connection",
		"broken pipe",
		"connection reset",
		"connection refused",
		"lost connection",
		"gone away",
		"i/o timeout",
	} {
		if strings.Contains(msg, transient) {
			return true
		}
	}
	return false
}

// withRetry runs a read, retrying transient errors with backoff
func (s *MySQLStore) withRetry(ctx context.Context, op func() error) error {
	return backoff.Retry(func() error {
		err := op()
		if err != nil && !isRetryableError(err) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(s.newBackoff(), ctx))
}

// FetchRecord returns the record, or nil if it does not exist
func (s *MySQLStore) FetchRecord(ctx context.Context, id string) (*domain.OperationRecord, error) {
	var record *domain.OperationRecord
	err := s.withRetry(ctx, func() error {
		row := s.db.QueryRowContext(ctx,
			"SELECT "+selectColumns+" FROM "+operationsTable+" WHERE id = ?", id)
		r, err := scanRecord(row)
		if errors.Is(err, sql.ErrNoRows) {
			record = nil
			return nil
		}
		record = r
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch record %s: %w", id, err)
	}
	return record, nil
}

// ListRecords returns every record, oldest first
func (s *MySQLStore) ListRecords(ctx context.Context) ([]*domain.OperationRecord, error) {
	var out []*domain.OperationRecord
	err := s.withRetry(ctx, func() error {
		rows, err := s.db.QueryContext(ctx,
			"SELECT "+selectColumns+" FROM "+operationsTable+" ORDER BY created_at, id")
		if err != nil {
			return err
		}
		defer rows.Close()

		out = out[:0]
		for rows.Next() {
			r, err := scanRecord(rows)
			if err != nil {
				return err
			}
			out = append(out, r)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	return out, nil
}

// CreateRecord inserts a record built from fields and returns its id
func (s *MySQLStore) CreateRecord(ctx context.Context, fields map[string]any) (string, error) {
	now := s.now()
	r := &domain.OperationRecord{ID: uuid.NewString(), CreatedAt: now, UpdatedAt: now}
	if err := r.Apply(fields); err != nil {
		return "", invalidFields(err)
	}

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO "+operationsTable+" ("+selectColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		r.ID, nullable(r.Name), nullable(r.Objective), nullable(r.StartDate), depthValue(r.Depth),
		nullable(r.Notes), nullable(r.SiteID), nullable(r.TeamID), nullable(r.ResponsiblePartyID),
		r.CreatedAt, r.UpdatedAt)
	if err != nil {
		return "", fmt.Errorf("failed to insert record: %w", err)
	}
	s.logger.DebugContext(ctx, "record_created", slog.String("record_id", r.ID))
	return r.ID, nil
}

// UpdateRecord writes only the given fields. A nil value writes NULL.
func (s *MySQLStore) UpdateRecord(ctx context.Context, id string, fields map[string]any) error {
	query, args, err := buildUpdate(id, fields, s.now())
	if err != nil {
		return invalidFields(err)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update record %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return recordNotFound(id)
	}
	return nil
}

// buildUpdate renders the UPDATE for a partial write. Columns come from the
// writable field allow-list and are emitted in sorted key order.
func buildUpdate(id string, fields map[string]any, now time.Time) (string, []any, error) {
	var scratch domain.OperationRecord
	if err := scratch.Apply(fields); err != nil {
		return "", nil, err
	}

	var (
		sets []string
		args []any
	)
	for _, key := range domain.WritableFields() {
		if _, ok := fields[key]; !ok {
			continue
		}
		sets = append(sets, "`"+key+"` = ?")
		args = append(args, columnValue(&scratch, key))
	}
	sets = append(sets, "`updated_at` = ?")
	args = append(args, now, id)

	return "UPDATE " + operationsTable + " SET " + strings.Join(sets, ", ") + " WHERE id = ?", args, nil
}

func columnValue(r *domain.OperationRecord, key string) any {
	switch key {
	case domain.FieldName:
		return nullable(r.Name)
	case domain.FieldObjective:
		return nullable(r.Objective)
	case domain.FieldStartDate:
		return nullable(r.StartDate)
	case domain.FieldDepth:
		return depthValue(r.Depth)
	case domain.FieldNotes:
		return nullable(r.Notes)
	case domain.FieldSiteID:
		return nullable(r.SiteID)
	case domain.FieldTeamID:
		return nullable(r.TeamID)
	case domain.FieldResponsiblePartyID:
		return nullable(r.ResponsiblePartyID)
	}
	return nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func depthValue(d *float64) any {
	if d == nil {
		return nil
	}
	return *d
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*domain.OperationRecord, error) {
	var (
		r                                  domain.OperationRecord
		name, objective, startDate, notes  sql.NullString
		siteID, teamID, responsiblePartyID sql.NullString
		depth                              sql.NullFloat64
	)
	if err := row.Scan(&r.ID, &name, &objective, &startDate, &depth, &notes,
		&siteID, &teamID, &responsiblePartyID, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	r.Name = name.String
	r.Objective = objective.String
	r.StartDate = startDate.String
	r.Notes = notes.String
	r.SiteID = siteID.String
	r.TeamID = teamID.String
	r.ResponsiblePartyID = responsiblePartyID.String
	if depth.Valid {
		d := depth.Float64
		r.Depth = &d
	}
	return &r, nil
}

// CheckReadiness reports which safety documents are signed for id
func (s *MySQLStore) CheckReadiness(ctx context.Context, id string) (domain.DocumentReadiness, error) {
	signed := make(map[domain.DocumentKind]bool)
	err := s.withRetry(ctx, func() error {
		rows, err := s.db.QueryContext(ctx,
			"SELECT kind FROM "+documentsTable+" WHERE operation_id = ?", id)
		if err != nil {
			return err
		}
		defer rows.Close()

		clear(signed)
		for rows.Next() {
			var kind string
			if err := rows.Scan(&kind); err != nil {
				return err
			}
			signed[domain.DocumentKind(kind)] = true
		}
		return rows.Err()
	})
	if err != nil {
		return domain.DocumentReadiness{}, fmt.Errorf("failed to check readiness for %s: %w", id, err)
	}
	return domain.ReadinessFromSigned(signed), nil
}

// SignDocument marks a document signed. Signing twice keeps the first time.
func (s *MySQLStore) SignDocument(ctx context.Context, recordID string, kind domain.DocumentKind) error {
	record, err := s.FetchRecord(ctx, recordID)
	if err != nil {
		return err
	}
	if record == nil {
		return recordNotFound(recordID)
	}
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO "+documentsTable+" (operation_id, kind, signed_at) VALUES (?, ?, ?) "+
			"ON DUPLICATE KEY UPDATE signed_at = signed_at",
		recordID, string(kind), s.now())
	if err != nil {
		return fmt.Errorf("failed to sign %s for %s: %w", kind, recordID, err)
	}
	return nil
}

// RevokeDocument marks a document unsigned
func (s *MySQLStore) RevokeDocument(ctx context.Context, recordID string, kind domain.DocumentKind) error {
	record, err := s.FetchRecord(ctx, recordID)
	if err != nil {
		return err
	}
	if record == nil {
		return recordNotFound(recordID)
	}
	_, err = s.db.ExecContext(ctx,
		"DELETE FROM "+documentsTable+" WHERE operation_id = ? AND kind = ?", recordID, string(kind))
	if err != nil {
		return fmt.Errorf("failed to revoke %s for %s: %w", kind, recordID, err)
	}
	return nil
}

// Ping checks the connection
func (s *MySQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the connection pool
func (s *MySQLStore) Close() error {
	return s.db.Close()
}
