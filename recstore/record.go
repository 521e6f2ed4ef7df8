package recstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	// ErrMissingField is returned when a required record field (or the key) is empty
	ErrMissingField = errors.New("missing field")
	// ErrStorageUnavailable wraps every failure of the underlying file or database
	ErrStorageUnavailable = errors.New("storage unavailable")
	// ErrNotFound is returned by GetKeyForUser when no entry has the email
	ErrNotFound = errors.New("not found")

	ErrDuplicateKey   = errors.New("duplicate key")
	ErrDuplicateEmail = errors.New("duplicate email")
)

// Record describes a registrant
type Record struct {
	Name     string `json:"name"`
	LastName string `json:"last_name"`
	Email    string `json:"email"`
}

// Entry is a Record together with the access key it was saved with
type Entry struct {
	Record
	Key string `json:"key"`
}

// Store persists entries and answers membership queries.
// Boolean queries return (false, nil) when nothing matches; an error
// always means the storage itself failed.
type Store interface {
	Save(ctx context.Context, rec Record, key string) error
	KeyExists(ctx context.Context, key string) (bool, error)
	UserExists(ctx context.Context, rec Record) (bool, error)
	GetKeyForUser(ctx context.Context, rec Record) (string, error)
	// Entries returns all entries in insertion order
	Entries(ctx context.Context) ([]Entry, error)
	Close() error
}

func missingField(name string) error {
	return fmt.Errorf("%w: %s", ErrMissingField, name)
}

func storageErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStorageUnavailable, err)
}

// Validate checks that all fields needed by Save are present
func (r Record) Validate() error {
	if r.Name == "" {
		return missingField("name")
	}
	if r.LastName == "" {
		return missingField("last_name")
	}
	if r.Email == "" {
		return missingField("email")
	}
	return nil
}

func validateEntry(rec Record, key string) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	if key == "" {
		return missingField("key")
	}
	return nil
}

func validateEmail(rec Record) error {
	if rec.Email == "" {
		return missingField("email")
	}
	return nil
}

// RecordFromMap builds a Record from a loose mapping with keys
// "name", "last_name" and "email". Absent keys are reported as ErrMissingField.
// Only the keys listed in required are checked, all of them if required is empty.
func RecordFromMap(m map[string]string, required ...string) (Record, error) {
	if len(required) == 0 {
		required = []string{"name", "last_name", "email"}
	}
	for _, k := range required {
		if _, ok := m[k]; !ok {
			return Record{}, missingField(k)
		}
	}
	return Record{
		Name:     m["name"],
		LastName: m["last_name"],
		Email:    m["email"],
	}, nil
}

// NewKey returns a new random access key
func NewKey() string {
	return uuid.NewString()
}
