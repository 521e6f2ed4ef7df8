package recstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kjk/regstore/log"

	// registers "sqlite" driver
	_ "modernc.org/sqlite"
)

const DefaultDriver = "sqlite"

const (
	qryCreateTable = `CREATE TABLE IF NOT EXISTS records (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL,
	last_name TEXT NOT NULL,
	email TEXT NOT NULL,
	access_key TEXT NOT NULL,
	created_at INTEGER NOT NULL
)`
	qryCreateEmailIndex = `CREATE INDEX IF NOT EXISTS records_email ON records(email)`
	qryCreateKeyIndex   = `CREATE INDEX IF NOT EXISTS records_access_key ON records(access_key)`

	qrySaveNewRecord = `INSERT INTO records (name, last_name, email, access_key, created_at) VALUES (?, ?, ?, ?, ?)`
	qryGetKey        = `SELECT 1 FROM records WHERE access_key = ? LIMIT 1`
	qryCheckUser     = `SELECT 1 FROM records WHERE email = ? LIMIT 1`
	qryReturnKey     = `SELECT access_key FROM records WHERE email = ? ORDER BY id LIMIT 1`
	qryAllRecords    = `SELECT name, last_name, email, access_key FROM records ORDER BY id`
)

// SQLStore keeps entries in a relational database.
// Queries are parameterized; "first" means lowest row id i.e. insertion order.
type SQLStore struct {
	// if true, Save rejects a key or email that is already stored
	RejectDuplicates bool

	db *sql.DB
}

var _ Store = &SQLStore{}

// OpenSQLStore connects to the database, checks connectivity
// and creates the schema if needed
func OpenSQLStore(ctx context.Context, driver string, dsn string) (*SQLStore, error) {
	if driver == "" {
		driver = DefaultDriver
	}
	if dsn == "" {
		return nil, fmt.Errorf("database dsn is not set")
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		log.Errorf("Could not open database: %s\n", err)
		return nil, storageErr("OpenSQLStore", err)
	}
	if err = db.PingContext(ctx); err != nil {
		db.Close()
		log.Errorf("Could not establish connection: %s\n", err)
		return nil, storageErr("OpenSQLStore", err)
	}
	for _, q := range []string{qryCreateTable, qryCreateEmailIndex, qryCreateKeyIndex} {
		if _, err = db.ExecContext(ctx, q); err != nil {
			db.Close()
			log.Errorf("Could not create schema: %s\n", err)
			return nil, storageErr("OpenSQLStore", err)
		}
	}
	return &SQLStore{db: db}, nil
}

func (s *SQLStore) exists(ctx context.Context, op string, qry string, arg string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, qry, arg).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		log.Errorf("%s: %s\n", op, err)
		return false, storageErr(op, err)
	}
	return true, nil
}

func (s *SQLStore) Save(ctx context.Context, rec Record, key string) error {
	if err := validateEntry(rec, key); err != nil {
		return err
	}
	if s.RejectDuplicates {
		found, err := s.exists(ctx, "Save", qryGetKey, key)
		if err != nil {
			return err
		}
		if found {
			return fmt.Errorf("%w: key already registered", ErrDuplicateKey)
		}
		found, err = s.exists(ctx, "Save", qryCheckUser, rec.Email)
		if err != nil {
			return err
		}
		if found {
			return fmt.Errorf("%w: %s", ErrDuplicateEmail, rec.Email)
		}
	}
	now := time.Now().UTC().UnixMilli()
	_, err := s.db.ExecContext(ctx, qrySaveNewRecord, rec.Name, rec.LastName, rec.Email, key, now)
	if err != nil {
		log.Errorf("Could not insert the record for '%s': %s\n", rec.Email, err)
		return storageErr("Save", err)
	}
	log.Infof("Record for '%s' has been saved\n", rec.Email)
	log.Event("record_saved", "backend", "database", "email", rec.Email)
	return nil
}

func (s *SQLStore) KeyExists(ctx context.Context, key string) (bool, error) {
	if key == "" {
		return false, missingField("key")
	}
	return s.exists(ctx, "KeyExists", qryGetKey, key)
}

func (s *SQLStore) UserExists(ctx context.Context, rec Record) (bool, error) {
	if err := validateEmail(rec); err != nil {
		return false, err
	}
	return s.exists(ctx, "UserExists", qryCheckUser, rec.Email)
}

func (s *SQLStore) GetKeyForUser(ctx context.Context, rec Record) (string, error) {
	if err := validateEmail(rec); err != nil {
		return "", err
	}
	var key string
	err := s.db.QueryRowContext(ctx, qryReturnKey, rec.Email).Scan(&key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		log.Errorf("GetKeyForUser: %s\n", err)
		return "", storageErr("GetKeyForUser", err)
	}
	return key, nil
}

func (s *SQLStore) Entries(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, qryAllRecords)
	if err != nil {
		return nil, storageErr("Entries", err)
	}
	defer rows.Close()

	var res []Entry
	for rows.Next() {
		var e Entry
		if err = rows.Scan(&e.Name, &e.LastName, &e.Email, &e.Key); err != nil {
			return nil, storageErr("Entries", err)
		}
		res = append(res, e)
	}
	if err = rows.Err(); err != nil {
		return nil, storageErr("Entries", err)
	}
	return res, nil
}

// Close closes the database. Operations after Close fail with
// ErrStorageUnavailable.
func (s *SQLStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
