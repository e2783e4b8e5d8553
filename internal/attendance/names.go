package attendance

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/celerix-dev/celerix-attendance/internal/engine"
	"github.com/celerix-dev/celerix-attendance/internal/log"
)

// ProfileLookup fetches a user's display name from the messaging platform.
type ProfileLookup interface {
	DisplayName(ctx context.Context, userID string) (string, error)
}

// Resolution is the outcome of resolving a display name. Fallback is set
// when Name was synthesized because the profile could not be fetched.
type Resolution struct {
	Name     string
	Fallback bool
}

// FallbackName synthesizes a display name from the last four characters of
// the user identifier.
func FallbackName(userID string) string {
	r := []rune(userID)
	if len(r) > 4 {
		r = r[len(r)-4:]
	}
	return "ユーザー" + string(r)
}

// NameResolver fills the user directory lazily. Each user is looked up at
// most once at a time; successful lookups are stored in the directory,
// fallbacks are only remembered for the lifetime of the process.
type NameResolver struct {
	directory engine.Directory
	profiles  ProfileLookup

	group     singleflight.Group
	mu        sync.Mutex
	fallbacks map[string]string
}

// NewNameResolver returns a resolver backed by directory. profiles may be
// nil, in which case every unknown user gets a fallback name.
func NewNameResolver(directory engine.Directory, profiles ProfileLookup) *NameResolver {
	return &NameResolver{
		directory: directory,
		profiles:  profiles,
		fallbacks: make(map[string]string),
	}
}

// Resolve never fails: any error on the way degrades to a fallback name.
func (r *NameResolver) Resolve(ctx context.Context, userID string) Resolution {
	name, ok, err := r.directory.Name(ctx, userID)
	if err != nil {
		log.Ctx(ctx).Warn().Err(err).Msg("attendance: directory read failed")
	} else if ok {
		return Resolution{Name: name}
	}

	r.mu.Lock()
	name, ok = r.fallbacks[userID]
	r.mu.Unlock()
	if ok {
		return Resolution{Name: name, Fallback: true}
	}

	v, _, _ := r.group.Do(userID, func() (any, error) {
		return r.lookup(ctx, userID), nil
	})
	return v.(Resolution)
}

func (r *NameResolver) lookup(ctx context.Context, userID string) Resolution {
	if r.profiles == nil {
		return r.fallback(userID)
	}
	name, err := r.profiles.DisplayName(ctx, userID)
	if err != nil || name == "" {
		log.Ctx(ctx).Warn().Err(err).Msg("attendance: profile lookup failed, using fallback name")
		return r.fallback(userID)
	}
	if err := r.directory.Remember(ctx, userID, name); err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("attendance: failed to store display name")
	}
	return Resolution{Name: name}
}

func (r *NameResolver) fallback(userID string) Resolution {
	name := FallbackName(userID)
	r.mu.Lock()
	r.fallbacks[userID] = name
	r.mu.Unlock()
	return Resolution{Name: name, Fallback: true}
}
