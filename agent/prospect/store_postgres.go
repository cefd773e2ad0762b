package prospect

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
)

type PostgresConfig struct {
	DSN          string        `envconfig:"DSN" split_words:"true"`
	MaxOpenConns int           `envconfig:"MAX_OPEN_CONNS" split_words:"true" default:"10"`
	Timeout      time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"5s"`
}

// prospectRow stores the full record as a JSONB document next to the columns
// the store queries on.
type prospectRow struct {
	bun.BaseModel `bun:"table:prospects,alias:p"`

	ClientID  string    `bun:"client_id,pk"`
	FullName  string    `bun:"full_name,notnull"`
	Document  *Record   `bun:"document,type:jsonb,notnull"`
	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type PostgresStore struct {
	db  *bun.DB
	now func() time.Time
}

var _ Store = (*PostgresStore)(nil)

// OpenPostgresStore connects, pings and makes sure the prospects table exists.
func OpenPostgresStore(ctx context.Context, cfg PostgresConfig) (*PostgresStore, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("postgres dsn is required")
	}

	opts := []pgdriver.Option{pgdriver.WithDSN(dsn)}
	if cfg.Timeout > 0 {
		opts = append(opts, pgdriver.WithTimeout(cfg.Timeout))
	}
	sqldb := sql.OpenDB(pgdriver.NewConnector(opts...))
	if cfg.MaxOpenConns > 0 {
		sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
	}

	db := bun.NewDB(sqldb, pgdialect.New())
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	store := NewPostgresStore(db)
	if err := store.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func NewPostgresStore(db *bun.DB) *PostgresStore {
	return &PostgresStore{db: db, now: time.Now}
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.NewCreateTable().
		Model((*prospectRow)(nil)).
		IfNotExists().
		Exec(ctx); err != nil {
		return fmt.Errorf("create prospects table: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) Create(ctx context.Context, rec *Record) (*Record, error) {
	if rec == nil {
		return nil, ErrNilRecord
	}
	cp, err := prepareWrite(rec.ClientID, rec)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	row := &prospectRow{
		ClientID:  cp.ClientID,
		FullName:  cp.FullName,
		Document:  cp,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if _, err := s.db.NewInsert().Model(row).Exec(ctx); err != nil {
		var pgErr pgdriver.Error
		if errors.As(err, &pgErr) && pgErr.IntegrityViolation() {
			return nil, ErrRecordExists
		}
		return nil, fmt.Errorf("insert prospect: %w", err)
	}
	return cp.Clone(), nil
}

func (s *PostgresStore) GetByID(ctx context.Context, clientID string) (*Record, error) {
	id, err := normalizeID(clientID)
	if err != nil {
		return nil, err
	}

	row := new(prospectRow)
	err = s.db.NewSelect().
		Model(row).
		Where("client_id = ?", id).
		Limit(1).
		Scan(ctx)
	return rowRecord(row, err)
}

func (s *PostgresStore) GetByName(ctx context.Context, fragment string) (*Record, error) {
	fragment = strings.TrimSpace(fragment)
	if fragment == "" {
		return nil, ErrRecordNotFound
	}

	row := new(prospectRow)
	err := s.db.NewSelect().
		Model(row).
		Where("full_name ILIKE ?", "%"+escapeLike(fragment)+"%").
		OrderExpr("client_id ASC").
		Limit(1).
		Scan(ctx)
	return rowRecord(row, err)
}

func (s *PostgresStore) Update(ctx context.Context, clientID string, rec *Record) (*Record, error) {
	cp, err := prepareWrite(clientID, rec)
	if err != nil {
		return nil, err
	}

	row := &prospectRow{
		ClientID:  cp.ClientID,
		FullName:  cp.FullName,
		Document:  cp,
		UpdatedAt: s.now().UTC(),
	}
	res, err := s.db.NewUpdate().
		Model(row).
		Column("full_name", "document", "updated_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		return nil, fmt.Errorf("update prospect: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, ErrRecordNotFound
	}
	return cp.Clone(), nil
}

func (s *PostgresStore) Delete(ctx context.Context, clientID string) error {
	id, err := normalizeID(clientID)
	if err != nil {
		return err
	}
	res, err := s.db.NewDelete().
		Model((*prospectRow)(nil)).
		Where("client_id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("delete prospect: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func (s *PostgresStore) ListByIDPrefix(ctx context.Context, prefix string) ([]*Record, error) {
	var rows []prospectRow
	if err := s.db.NewSelect().
		Model(&rows).
		Where("client_id LIKE ?", escapeLike(prefix)+"%").
		OrderExpr("client_id ASC").
		Scan(ctx); err != nil {
		return nil, fmt.Errorf("list prospects: %w", err)
	}

	out := make([]*Record, 0, len(rows))
	for i := range rows {
		if rows[i].Document == nil {
			continue
		}
		out = append(out, rows[i].Document)
	}
	return out, nil
}

func rowRecord(row *prospectRow, err error) (*Record, error) {
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select prospect: %w", err)
	}
	if row.Document == nil {
		return nil, fmt.Errorf("prospect %s has an empty document", row.ClientID)
	}
	return row.Document, nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
