package prospect

import (
	"context"
	"errors"
	"strings"
)

var (
	ErrRecordNotFound = errors.New("prospect record not found")
	ErrRecordExists   = errors.New("prospect record already exists")
)

// DefaultListPrefix selects prospects (client ids start with PROSP) without
// matching onboarded client ids.
const DefaultListPrefix = "PRO"

// Store is the persistence contract used by the workflow steps and the API.
// Records are keyed by client id. Implementations must be safe for concurrent
// use; concurrent writes to the same id resolve as last-writer-wins.
type Store interface {
	Create(ctx context.Context, rec *Record) (*Record, error)
	GetByID(ctx context.Context, clientID string) (*Record, error)
	// GetByName returns the first record (ordered by client id) whose full name
	// contains fragment, case-insensitively.
	GetByName(ctx context.Context, fragment string) (*Record, error)
	Update(ctx context.Context, clientID string, rec *Record) (*Record, error)
	Delete(ctx context.Context, clientID string) error
	ListByIDPrefix(ctx context.Context, prefix string) ([]*Record, error)
}

func normalizeID(clientID string) (string, error) {
	id := strings.TrimSpace(clientID)
	if id == "" {
		return "", ErrEmptyClientID
	}
	return id, nil
}

// prepareWrite validates rec against the key it is being written under and
// returns a private copy with the storage id mirrored.
func prepareWrite(clientID string, rec *Record) (*Record, error) {
	id, err := normalizeID(clientID)
	if err != nil {
		return nil, err
	}
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	if rec.ClientID != id {
		return nil, ErrClientIDChange
	}
	out := rec.Clone()
	out.ID = id
	return out, nil
}

func nameMatches(rec *Record, fragment string) bool {
	if rec == nil {
		return false
	}
	return strings.Contains(strings.ToLower(rec.FullName), strings.ToLower(strings.TrimSpace(fragment)))
}
