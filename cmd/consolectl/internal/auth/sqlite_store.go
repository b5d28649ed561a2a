package auth

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ringline/console/pkg/sdk"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	_ "modernc.org/sqlite"
)

const databaseFile = "console.db"

type kvEntry struct {
	bun.BaseModel `bun:"table:kv"`

	Key   string `bun:"key,pk"`
	Value string `bun:"value,notnull"`
}

// SQLiteStore implements sdk.CredentialStore as a key/value table in SQLite.
type SQLiteStore struct {
	db *bun.DB
}

var _ sdk.CredentialStore = (*SQLiteStore)(nil)

// NewSQLiteStore opens (creating if needed) console.db under dir.
func NewSQLiteStore(dir string) (*SQLiteStore, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", dir, err)
	}
	return OpenSQLiteStore("file:" + filepath.Join(dir, databaseFile))
}

// OpenSQLiteStore opens a store on an explicit DSN (":memory:" works for tests).
func OpenSQLiteStore(dsn string) (*SQLiteStore, error) {
	sqldb, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// Single connection: one writer, and ":memory:" databases are per connection.
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())

	ctx := context.Background()
	if _, err := db.NewCreateTable().Model((*kvEntry)(nil)).IfNotExists().Exec(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create kv table: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) LoadCredentials() (*sdk.Credentials, error) {
	ctx := context.Background()
	values, err := s.get(ctx, s.db, sdk.KeyAccessToken, sdk.KeyRefreshToken)
	if err != nil {
		return nil, err
	}
	access, refresh := values[sdk.KeyAccessToken], values[sdk.KeyRefreshToken]
	if access == "" && refresh == "" {
		return nil, nil
	}
	return &sdk.Credentials{AccessToken: access, RefreshToken: refresh}, nil
}

func (s *SQLiteStore) SaveCredentials(credentials *sdk.Credentials) error {
	return s.db.RunInTx(context.Background(), nil, func(ctx context.Context, tx bun.Tx) error {
		values, err := s.get(ctx, tx, sdk.KeyAccessToken, sdk.KeyRefreshToken)
		if err != nil {
			return err
		}

		var prev *sdk.Credentials
		if values[sdk.KeyRefreshToken] != "" {
			prev = &sdk.Credentials{AccessToken: values[sdk.KeyAccessToken], RefreshToken: values[sdk.KeyRefreshToken]}
		}
		merged, err := sdk.MergeCredentials(prev, credentials)
		if err != nil {
			return err
		}

		entries := []kvEntry{
			{Key: sdk.KeyAccessToken, Value: merged.AccessToken},
			{Key: sdk.KeyRefreshToken, Value: merged.RefreshToken},
		}
		_, err = tx.NewInsert().
			Model(&entries).
			On(`CONFLICT ("key") DO UPDATE`).
			Set("value = EXCLUDED.value").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("store credentials: %w", err)
		}
		return nil
	})
}

func (s *SQLiteStore) DeleteCredentials() error {
	return s.delete(sdk.KeyAccessToken, sdk.KeyRefreshToken)
}

func (s *SQLiteStore) LoadIdentity() (*sdk.Identity, error) {
	values, err := s.get(context.Background(), s.db, sdk.KeyIdentity)
	if err != nil {
		return nil, err
	}
	raw, ok := values[sdk.KeyIdentity]
	if !ok {
		return nil, nil
	}
	var identity sdk.Identity
	if err := json.Unmarshal([]byte(raw), &identity); err != nil {
		return nil, fmt.Errorf("failed to unmarshal identity: %w", err)
	}
	return &identity, nil
}

func (s *SQLiteStore) SaveIdentity(identity *sdk.Identity) error {
	if identity == nil {
		return s.DeleteIdentity()
	}
	data, err := json.Marshal(identity)
	if err != nil {
		return fmt.Errorf("failed to marshal identity: %w", err)
	}

	entry := kvEntry{Key: sdk.KeyIdentity, Value: string(data)}
	_, err = s.db.NewInsert().
		Model(&entry).
		On(`CONFLICT ("key") DO UPDATE`).
		Set("value = EXCLUDED.value").
		Exec(context.Background())
	if err != nil {
		return fmt.Errorf("store identity: %w", err)
	}
	return nil
}

func (s *SQLiteStore) DeleteIdentity() error {
	return s.delete(sdk.KeyIdentity)
}

func (s *SQLiteStore) get(ctx context.Context, db bun.IDB, keys ...string) (map[string]string, error) {
	var entries []kvEntry
	err := db.NewSelect().
		Model(&entries).
		Where(`"key" IN (?)`, bun.In(keys)).
		Scan(ctx)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("read %v: %w", keys, err)
	}
	values := make(map[string]string, len(entries))
	for _, e := range entries {
		values[e.Key] = e.Value
	}
	return values, nil
}

func (s *SQLiteStore) delete(keys ...string) error {
	_, err := s.db.NewDelete().
		Model((*kvEntry)(nil)).
		Where(`"key" IN (?)`, bun.In(keys)).
		Exec(context.Background())
	if err != nil {
		return fmt.Errorf("delete %v: %w", keys, err)
	}
	return nil
}
