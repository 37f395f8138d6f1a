// Package auth decides who may talk to the bot. Access is granted by Telegram
// username in two tiers: users may record and read dossiers, admins may also
// manage the allowlist and inspect the bot's state.
package auth

import (
	"sort"
	"strings"
	"sync"
)

type Tier int

const (
	TierNone Tier = iota
	TierUser
	TierAdmin
)

func (t Tier) String() string {
	switch t {
	case TierUser:
		return "user"
	case TierAdmin:
		return "admin"
	default:
		return "none"
	}
}

// Repository stores usernames granted at runtime.
type Repository interface {
	LoadAll() ([]string, error)
	Add(username string) error
	Remove(username string) error
}

type Service struct {
	repo Repository

	mu      sync.RWMutex
	admins  map[string]struct{}
	seeded  map[string]struct{}
	granted map[string]struct{}
}

// NewWithRepo seeds the service from configuration and merges the runtime
// grants stored in repo. A nil repo keeps grants in memory only.
func NewWithRepo(repo Repository, users, admins []string) (*Service, error) {
	s := &Service{
		repo:    repo,
		admins:  make(map[string]struct{}),
		seeded:  make(map[string]struct{}),
		granted: make(map[string]struct{}),
	}
	for _, u := range admins {
		if k := Normalize(u); k != "" {
			s.admins[k] = struct{}{}
		}
	}
	for _, u := range users {
		if k := Normalize(u); k != "" {
			s.seeded[k] = struct{}{}
		}
	}
	if repo != nil {
		stored, err := repo.LoadAll()
		if err != nil {
			return nil, err
		}
		for _, u := range stored {
			if k := Normalize(u); k != "" {
				s.granted[k] = struct{}{}
			}
		}
	}
	return s, nil
}

// Normalize strips a leading '@' and folds case; Telegram usernames are
// case-insensitive.
func Normalize(username string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(username), "@"))
}

func (s *Service) Tier(username string) Tier {
	k := Normalize(username)
	if k == "" {
		return TierNone
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.admins[k]; ok {
		return TierAdmin
	}
	if _, ok := s.seeded[k]; ok {
		return TierUser
	}
	if _, ok := s.granted[k]; ok {
		return TierUser
	}
	return TierNone
}

func (s *Service) IsUser(username string) bool  { return s.Tier(username) >= TierUser }
func (s *Service) IsAdmin(username string) bool { return s.Tier(username) == TierAdmin }

// Allow grants user rights at runtime. It reports false when the username
// already had access.
func (s *Service) Allow(username string) (bool, error) {
	k := Normalize(username)
	if k == "" {
		return false, nil
	}
	if s.IsUser(k) {
		return false, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.repo != nil {
		if err := s.repo.Add(k); err != nil {
			return false, err
		}
	}
	s.granted[k] = struct{}{}
	return true, nil
}

// Revoke removes a runtime grant. Usernames configured through the
// environment cannot be revoked here.
func (s *Service) Revoke(username string) (bool, error) {
	k := Normalize(username)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.granted[k]; !ok {
		return false, nil
	}
	if s.repo != nil {
		if err := s.repo.Remove(k); err != nil {
			return false, err
		}
	}
	delete(s.granted, k)
	return true, nil
}

// Entry is one line of the allowlist.
type Entry struct {
	Username string
	Tier     Tier
	// Runtime is set for grants made through Allow.
	Runtime bool
}

// List returns every known username sorted by name.
func (s *Service) List() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[string]Entry)
	for u := range s.granted {
		seen[u] = Entry{Username: u, Tier: TierUser, Runtime: true}
	}
	for u := range s.seeded {
		seen[u] = Entry{Username: u, Tier: TierUser}
	}
	for u := range s.admins {
		seen[u] = Entry{Username: u, Tier: TierAdmin}
	}
	out := make([]Entry, 0, len(seen))
	for _, e := range seen {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out
}
