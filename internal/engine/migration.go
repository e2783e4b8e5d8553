package engine

import (
	"context"
	"fmt"

	"github.com/celerix-dev/celerix-attendance/pkg/schema"
)

// Importer is implemented by stores that can take a user's sessions wholesale.
type Importer interface {
	Import(ctx context.Context, userID string, sessions []schema.Session) error
}

// Migrate copies every user's sessions from src to dst, then every known
// display name. Users are imported in src order, so dst reports in the same
// order. This works for:
// - file -> Redis (moving a single node onto shared state)
// - Redis -> file (backup)
func Migrate(ctx context.Context, src SessionReader, dst Importer, srcNames, dstNames Directory) error {
	// 1. Get all users with their sessions from the source
	users, err := src.AllUsers(ctx)
	if err != nil {
		return fmt.Errorf("failed to list users: %w", err)
	}

	// 2. Push every sequence into the destination
	for _, u := range users {
		if err := CheckSessions(u.Sessions); err != nil {
			return fmt.Errorf("refusing to migrate user %s: %w", u.UserID, err)
		}
		if err := dst.Import(ctx, u.UserID, u.Sessions); err != nil {
			return fmt.Errorf("failed to import user %s: %w", u.UserID, err)
		}
	}

	if srcNames == nil || dstNames == nil {
		return nil
	}

	// 3. Copy the directory
	names, err := srcNames.Names(ctx)
	if err != nil {
		return fmt.Errorf("failed to list names: %w", err)
	}
	for userID, name := range names {
		if err := dstNames.Remember(ctx, userID, name); err != nil {
			return fmt.Errorf("failed to copy name for %s: %w", userID, err)
		}
	}
	return nil
}

// Import replaces the user's sessions and flushes.
func (m *MemStore) Import(_ context.Context, userID string, sessions []schema.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	next := make([]schema.Session, len(sessions))
	copy(next, sessions)
	return m.commit(userID, next)
}

// Import replaces the user's sessions in one transaction.
func (r *RedisStore) Import(ctx context.Context, userID string, sessions []schema.Session) error {
	_, err := r.mutate(ctx, userID, func(_ []schema.Session) ([]schema.Session, schema.Session, error) {
		return sessions, schema.Session{}, nil
	})
	return err
}
