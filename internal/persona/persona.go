// Package persona supplies the LLM system instruction for each user.
package persona

import (
	"context"
	"embed"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/dwizi/groundbot/internal/watcher"
)

//go:embed default_persona.yaml
var defaultPersonaFS embed.FS

type UserPersona struct {
	Label  string `yaml:"label"`
	Prefix string `yaml:"prefix"`
}

type Profile struct {
	Base  string                 `yaml:"base"`
	Users map[string]UserPersona `yaml:"users"`
}

// SystemInstruction returns the user's prefix followed by the base persona.
func (p Profile) SystemInstruction(userID string) string {
	base := strings.TrimSpace(p.Base)
	user, ok := p.Users[strings.TrimSpace(userID)]
	if !ok || strings.TrimSpace(user.Prefix) == "" {
		return base
	}
	return strings.TrimSpace(user.Prefix) + "\n\n" + base
}

func Default() Profile {
	data, err := defaultPersonaFS.ReadFile("default_persona.yaml")
	if err != nil {
		panic(fmt.Sprintf("read embedded persona: %v", err))
	}
	profile, err := Parse(data)
	if err != nil {
		panic(fmt.Sprintf("parse embedded persona: %v", err))
	}
	return profile
}

// Parse reads a persona document. An empty base is an error so a truncated
// file never blanks the bot's instructions.
func Parse(data []byte) (Profile, error) {
	var profile Profile
	if err := yaml.Unmarshal(data, &profile); err != nil {
		return Profile{}, fmt.Errorf("parse persona: %w", err)
	}
	if strings.TrimSpace(profile.Base) == "" {
		return Profile{}, fmt.Errorf("parse persona: base is required")
	}
	if profile.Users == nil {
		profile.Users = map[string]UserPersona{}
	}
	return profile, nil
}

// Store holds the active profile and can reload it from disk.
type Store struct {
	path   string
	logger *slog.Logger

	mu      sync.RWMutex
	profile Profile
}

// NewStore loads path when set, otherwise the embedded default.
func NewStore(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	store := &Store{
		path:    strings.TrimSpace(path),
		logger:  logger,
		profile: Default(),
	}
	if store.path == "" {
		return store, nil
	}
	if err := store.Reload(); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *Store) Path() string {
	return s.path
}

func (s *Store) Reload() error {
	if s.path == "" {
		return nil
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("read persona file: %w", err)
	}
	profile, err := Parse(data)
	if err != nil {
		return fmt.Errorf("%s: %w", s.path, err)
	}
	s.mu.Lock()
	s.profile = profile
	s.mu.Unlock()
	s.logger.Info("persona loaded", "path", s.path, "user_overrides", len(profile.Users))
	return nil
}

func (s *Store) SystemInstruction(userID string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.profile.SystemInstruction(userID)
}

// Watch reloads the persona whenever its file changes. A bad edit is logged
// and the previous profile stays active. Without a file it blocks until ctx ends.
func (s *Store) Watch(ctx context.Context) error {
	if s.path == "" {
		<-ctx.Done()
		return nil
	}
	service, err := watcher.New([]string{s.path}, s.logger, func(ctx context.Context, path string) {
		if err := s.Reload(); err != nil {
			s.logger.Error("persona reload failed, keeping previous", "path", path, "error", err)
		}
	})
	if err != nil {
		return err
	}
	return service.Start(ctx)
}
