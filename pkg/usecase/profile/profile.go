package profile

import (
	"context"
	"errors"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/zuychin03/zuychin-assistant/pkg/model"
	"github.com/zuychin03/zuychin-assistant/pkg/repository"
)

// Invalidator drops cached copies of a profile
type Invalidator interface {
	InvalidateProfile(ownerID string)
}

// UseCase reads and updates the system prompt override of an owner
type UseCase struct {
	repo        repository.Repository
	invalidator Invalidator
}

// New creates a new profile UseCase. invalidator may be nil.
func New(repo repository.Repository, invalidator Invalidator) *UseCase {
	return &UseCase{
		repo:        repo,
		invalidator: invalidator,
	}
}

// Get returns the profile of an owner. An owner without a stored profile gets an empty one.
func (u *UseCase) Get(ctx context.Context, ownerID string) (*model.Profile, error) {
	profile, err := u.repo.GetProfile(ctx, ownerID)
	if errors.Is(err, repository.ErrNotFound) {
		return &model.Profile{OwnerID: ownerID}, nil
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get profile", goerr.V("owner_id", ownerID))
	}
	return profile, nil
}

// SetSystemPrompt stores the override. An empty prompt restores the built-in one.
func (u *UseCase) SetSystemPrompt(ctx context.Context, ownerID, prompt string) (*model.Profile, error) {
	profile := &model.Profile{
		OwnerID:      ownerID,
		SystemPrompt: prompt,
		UpdatedAt:    time.Now(),
	}
	if err := u.repo.PutProfile(ctx, profile); err != nil {
		return nil, goerr.Wrap(err, "failed to put profile", goerr.V("owner_id", ownerID))
	}

	if u.invalidator != nil {
		u.invalidator.InvalidateProfile(ownerID)
	}
	return profile, nil
}
