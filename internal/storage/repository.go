package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"cashbook/internal/auth"
	"cashbook/internal/core"
	"cashbook/internal/ledger"
	"cashbook/internal/ledger/feed"

	_ "modernc.org/sqlite"
)

// Change operations reported to the ChangeNotifier.
const (
	OpCreate = "create"
	OpUpdate = "update"
	OpDelete = "delete"
)

var transactionColumns = []string{
	"id", "owner_id", "owner_email", "owner_display_name",
	"amount", "type", "category", "remark", "created_at",
}

// ChangeNotifier is told about every committed write, after the local
// snapshot has been republished.
type ChangeNotifier interface {
	NotifyLedgerChanged(ctx context.Context, id, op string, version uint64) error
}

type SQLiteRepository struct {
	db       *sql.DB
	hub      *feed.Hub
	notifier ChangeNotifier
	now      func() time.Time
	schema   uint
}

type Option func(*SQLiteRepository)

func WithNotifier(n ChangeNotifier) Option {
	return func(r *SQLiteRepository) { r.notifier = n }
}

// WithClock replaces the clock used to stamp CreatedAt.
func WithClock(now func() time.Time) Option {
	return func(r *SQLiteRepository) { r.now = now }
}

func NewSQLiteRepository(dbPath string, opts ...Option) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// A single writer connection avoids SQLITE_BUSY under concurrent requests.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	version, err := RunMigrations(dbPath)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	r := &SQLiteRepository{db: db, now: time.Now, schema: version}
	for _, opt := range opts {
		opt(r)
	}
	r.hub = feed.New(r.List)

	slog.Info("SQLite ledger ready", "path", dbPath, "schema_version", version)
	return r, nil
}

// SetNotifier attaches a notifier after construction, once the transport is up.
func (r *SQLiteRepository) SetNotifier(n ChangeNotifier) {
	r.notifier = n
}

func (r *SQLiteRepository) Close() error {
	if r.hub != nil {
		r.hub.Close()
	}
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Append implements ledger.Writer.
func (r *SQLiteRepository) Append(ctx context.Context, rec ledger.NewRecord) (string, error) {
	t := core.Transaction{
		ID:               uuid.NewString(),
		OwnerID:          rec.OwnerID,
		OwnerEmail:       rec.OwnerEmail,
		OwnerDisplayName: rec.OwnerDisplayName,
		Amount:           rec.Fields.Amount,
		Type:             rec.Fields.Type,
		Category:         rec.Fields.Category,
		Remark:           rec.Fields.Remark,
		CreatedAt:        r.now().UTC(),
	}
	if err := t.Validate(); err != nil {
		return "", err
	}

	query, args, err := squirrel.Insert("transactions").
		Columns(transactionColumns...).
		Values(t.ID, t.OwnerID, t.OwnerEmail, t.OwnerDisplayName,
			t.Amount.String(), string(t.Type), string(t.Category), t.Remark, t.CreatedAt.UnixMicro()).
		ToSql()
	if err != nil {
		return "", fmt.Errorf("build insert: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return "", fmt.Errorf("insert transaction: %w", err)
	}

	slog.InfoContext(ctx, "Transaction saved to SQLite",
		"id", t.ID,
		"owner_id", t.OwnerID,
		"type", t.Type,
		"category", t.Category,
		"amount", t.Amount.String())

	r.changed(ctx, t.ID, OpCreate)
	return t.ID, nil
}

// Overwrite implements ledger.Writer.
func (r *SQLiteRepository) Overwrite(ctx context.Context, id string, fields core.Mutable) error {
	if !fields.Type.Valid() {
		return core.ErrInvalidType
	}
	if !fields.Category.Valid() {
		return core.ErrInvalidCategory
	}
	if fields.Amount.IsNegative() {
		return core.ErrInvalidAmount
	}

	query, args, err := squirrel.Update("transactions").
		Set("amount", fields.Amount.String()).
		Set("remark", fields.Remark).
		Set("type", string(fields.Type)).
		Set("category", string(fields.Category)).
		Set("created_at", r.now().UTC().UnixMicro()).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update transaction %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ledger.ErrNotFound
	}

	r.changed(ctx, id, OpUpdate)
	return nil
}

// Delete implements ledger.Writer. Deleting a missing id succeeds.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	query, args, err := squirrel.Delete("transactions").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete: %w", err)
	}
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("delete transaction %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		r.changed(ctx, id, OpDelete)
	}
	return nil
}

// Watch implements ledger.Feed.
func (r *SQLiteRepository) Watch(ctx context.Context, onSnapshot ledger.SnapshotFunc, onError ledger.ErrorFunc) (func(), error) {
	return r.hub.Watch(ctx, onSnapshot, onError)
}

// Refresh re-reads the table and republishes it, for changes written by
// another process.
func (r *SQLiteRepository) Refresh(ctx context.Context) error {
	return r.hub.Refresh(ctx)
}

// Version is the version of the last published snapshot.
func (r *SQLiteRepository) Version() uint64 {
	return r.hub.Version()
}

// List returns every transaction, newest first.
func (r *SQLiteRepository) List(ctx context.Context) ([]core.Transaction, error) {
	query, args, err := squirrel.Select(transactionColumns...).
		From("transactions").
		OrderBy("created_at DESC", "id DESC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	out := make([]core.Transaction, 0)
	for rows.Next() {
		var (
			t         core.Transaction
			typ, cat  string
			createdAt int64
		)
		if err := rows.Scan(&t.ID, &t.OwnerID, &t.OwnerEmail, &t.OwnerDisplayName,
			&t.Amount, &typ, &cat, &t.Remark, &createdAt); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		t.Type = core.TxType(typ)
		t.Category = core.Category(cat)
		t.CreatedAt = time.UnixMicro(createdAt).UTC()
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return out, nil
}

func (r *SQLiteRepository) changed(ctx context.Context, id, op string) {
	ctx = context.WithoutCancel(ctx)
	if err := r.hub.Refresh(ctx); err != nil {
		slog.ErrorContext(ctx, "Failed to republish ledger snapshot", "id", id, "op", op, "error", err)
	}
	if r.notifier == nil {
		return
	}
	if err := r.notifier.NotifyLedgerChanged(ctx, id, op, r.hub.Version()); err != nil {
		// The write is committed; other instances catch up on their next change.
		slog.ErrorContext(ctx, "Failed to publish ledger change", "id", id, "op", op, "error", err)
	}
}

// CreateUser implements auth.UserStore.
func (r *SQLiteRepository) CreateUser(ctx context.Context, u auth.User) error {
	query, args, err := squirrel.Insert("users").
		Columns("id", "email", "display_name", "password_hash", "created_at").
		Values(u.ID, u.Email, u.DisplayName, u.PasswordHash, u.CreatedAt.UnixMicro()).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return auth.ErrUserExists
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// UserByEmail implements auth.UserStore.
func (r *SQLiteRepository) UserByEmail(ctx context.Context, email string) (auth.User, error) {
	query, args, err := squirrel.Select("id", "email", "display_name", "password_hash", "created_at").
		From("users").
		Where(squirrel.Eq{"email": email}).
		ToSql()
	if err != nil {
		return auth.User{}, fmt.Errorf("build select: %w", err)
	}

	var (
		u         auth.User
		createdAt int64
	)
	err = r.db.QueryRowContext(ctx, query, args...).Scan(&u.ID, &u.Email, &u.DisplayName, &u.PasswordHash, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.User{}, auth.ErrUserNotFound
	}
	if err != nil {
		return auth.User{}, fmt.Errorf("query user: %w", err)
	}
	u.CreatedAt = time.UnixMicro(createdAt).UTC()
	return u, nil
}
