package services

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/tbourn/go-group-chat/internal/cache"
	"github.com/tbourn/go-group-chat/internal/domain"
	"github.com/tbourn/go-group-chat/internal/repo"
)

// UserService mirrors identities from validated sessions into the users
// table so message senders can be expanded with a display name.
type UserService struct {
	DB       *gorm.DB
	Profiles *cache.UserNames
}

// Touch records id with name and role. A cached identical profile skips the
// write.
func (s *UserService) Touch(ctx context.Context, id, name, role string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return errors.New("user id is empty")
	}
	p := cache.Profile{Name: strings.TrimSpace(name), Role: strings.TrimSpace(role)}
	if cached, ok := s.Profiles.Get(ctx, id); ok && cached == p {
		return nil
	}
	if err := repo.UpsertUser(ctx, s.DB, &domain.User{ID: id, Name: p.Name, Role: p.Role}); err != nil {
		return err
	}
	return s.Profiles.Put(ctx, id, p)
}
