package identity

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/MrEthical07/goRoam"
	"github.com/MrEthical07/goRoam/password"
)

var (
	// ErrDuplicateLogin is returned when a login or email is already taken on the site.
	ErrDuplicateLogin = errors.New("login or email already registered on site")
	// ErrDuplicateSite is returned when a site ID or URL is already registered.
	ErrDuplicateSite = errors.New("site already registered")
)

// MemoryStore is a mutex-guarded in-process identity table and site
// directory.
type MemoryStore struct {
	mu         sync.RWMutex
	hasher     password.Hasher
	identities map[string]goRoam.Identity
	sites      map[string]goRoam.Site
}

// NewMemoryStore returns an empty store hashing credentials with hasher.
func NewMemoryStore(hasher password.Hasher) *MemoryStore {
	return &MemoryStore{
		hasher:     hasher,
		identities: make(map[string]goRoam.Identity),
		sites:      make(map[string]goRoam.Site),
	}
}

// AddSite registers a tenant. Its URL is stored normalized.
func (s *MemoryStore) AddSite(site goRoam.Site) (goRoam.Site, error) {
	normalized, err := NormalizeSiteURL(site.URL)
	if err != nil {
		return goRoam.Site{}, err
	}
	if strings.TrimSpace(site.ID) == "" {
		return goRoam.Site{}, errors.New("site id required")
	}
	site.URL = normalized

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.sites {
		if existing.ID == site.ID || existing.URL == site.URL {
			return goRoam.Site{}, ErrDuplicateSite
		}
	}
	s.sites[site.ID] = site
	return site, nil
}

// AddIdentity stores identity with plain hashed as its credential. An empty
// ID is filled with a random UUID.
func (s *MemoryStore) AddIdentity(identity goRoam.Identity, plain string) (goRoam.Identity, error) {
	if identity.ID == "" {
		identity.ID = uuid.NewString()
	}
	if plain != "" {
		hash, err := s.hasher.Hash(plain)
		if err != nil {
			return goRoam.Identity{}, err
		}
		identity.PasswordHash = hash
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sites[identity.SiteID]; !ok {
		return goRoam.Identity{}, goRoam.ErrSiteNotFound
	}
	for _, existing := range s.identities {
		if existing.ID == identity.ID {
			return goRoam.Identity{}, ErrDuplicateLogin
		}
		if existing.SiteID != identity.SiteID {
			continue
		}
		if strings.EqualFold(existing.Login, identity.Login) ||
			(identity.Email != "" && strings.EqualFold(existing.Email, identity.Email)) {
			return goRoam.Identity{}, ErrDuplicateLogin
		}
	}
	identity.Roles = append([]string(nil), identity.Roles...)
	s.identities[identity.ID] = identity
	return identity, nil
}

// RemoveIdentity deletes an identity. Used by cleanup jobs draining the
// deferred-removal queue.
func (s *MemoryStore) RemoveIdentity(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.identities[id]; !ok {
		return goRoam.ErrIdentityNotFound
	}
	delete(s.identities, id)
	return nil
}

func (s *MemoryStore) IdentityByID(_ context.Context, id string) (goRoam.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	identity, ok := s.identities[id]
	if !ok {
		return goRoam.Identity{}, goRoam.ErrIdentityNotFound
	}
	return identity, nil
}

func (s *MemoryStore) IdentityByLogin(_ context.Context, siteID, login string) (goRoam.Identity, error) {
	return s.find(siteID, func(i goRoam.Identity) bool { return strings.EqualFold(i.Login, login) })
}

func (s *MemoryStore) IdentityByEmail(_ context.Context, siteID, email string) (goRoam.Identity, error) {
	if strings.TrimSpace(email) == "" {
		return goRoam.Identity{}, goRoam.ErrIdentityNotFound
	}
	return s.find(siteID, func(i goRoam.Identity) bool { return strings.EqualFold(i.Email, email) })
}

func (s *MemoryStore) find(siteID string, match func(goRoam.Identity) bool) (goRoam.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, identity := range s.identities {
		if identity.SiteID == siteID && match(identity) {
			return identity, nil
		}
	}
	return goRoam.Identity{}, goRoam.ErrIdentityNotFound
}

// VerifyCredential checks plain against the identity's stored hash. An
// identity without a credential never verifies.
func (s *MemoryStore) VerifyCredential(_ context.Context, identity goRoam.Identity, plain string) (bool, error) {
	return verify(s.hasher, identity.PasswordHash, plain)
}

func (s *MemoryStore) SetMainID(_ context.Context, identityID, mainID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	identity, ok := s.identities[identityID]
	if !ok {
		return goRoam.ErrIdentityNotFound
	}
	identity.MainID = mainID
	s.identities[identityID] = identity
	return nil
}

// LinkedTo returns the identities whose MainID is mainID, ordered by site.
func (s *MemoryStore) LinkedTo(_ context.Context, mainID string) ([]goRoam.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []goRoam.Identity
	for _, identity := range s.identities {
		if identity.MainID == mainID {
			out = append(out, identity)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SiteID == out[j].SiteID {
			return out[i].ID < out[j].ID
		}
		return out[i].SiteID < out[j].SiteID
	})
	return out, nil
}

func (s *MemoryStore) SiteByURL(_ context.Context, rawURL string) (goRoam.Site, error) {
	normalized, err := NormalizeSiteURL(rawURL)
	if err != nil {
		return goRoam.Site{}, goRoam.ErrSiteNotFound
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, site := range s.sites {
		if site.URL == normalized {
			return site, nil
		}
	}
	return goRoam.Site{}, goRoam.ErrSiteNotFound
}

func (s *MemoryStore) SiteByID(_ context.Context, id string) (goRoam.Site, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	site, ok := s.sites[id]
	if !ok {
		return goRoam.Site{}, goRoam.ErrSiteNotFound
	}
	return site, nil
}

func verify(hasher password.Hasher, hash, plain string) (bool, error) {
	if hash == "" || plain == "" {
		return false, nil
	}
	ok, err := hasher.Verify(plain, hash)
	if errors.Is(err, password.ErrPasswordTooLong) {
		return false, nil
	}
	return ok, err
}
