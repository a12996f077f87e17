// Package patron exposes the synced patron records to the login flow.
package patron

import (
	"context"
	"database/sql"
	"errors"

	"github.com/ovaphlow/pitchfork/service-auth-go/internal/patron/entity"
)

type finder interface {
	FindByEmail(ctx context.Context, email string) (*entity.Patron, error)
}

// Directory answers patron lookups by email.
type Directory struct {
	repo finder
}

func NewDirectory(r finder) *Directory {
	return &Directory{repo: r}
}

// FindByEmail returns nil, nil when no patron has email.
func (d *Directory) FindByEmail(ctx context.Context, email string) (*entity.Patron, error) {
	p, err := d.repo.FindByEmail(ctx, email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return p, err
}
