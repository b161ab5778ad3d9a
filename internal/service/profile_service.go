package service

import (
	"context"
	"fmt"

	"github.com/Romainl01/photobooth-backend/internal/models"
)

// ProfileProvisioner creates the profile row with the starting free balance
// on first authentication.
type ProfileProvisioner interface {
	Ensure(ctx context.Context, id string, startingCredits int) (*models.Profile, bool, error)
}

type ProfileService struct {
	startingCredits int
	profiles        ProfileProvisioner
}

func NewProfileService(startingCredits int, profiles ProfileProvisioner) *ProfileService {
	return &ProfileService{startingCredits: startingCredits, profiles: profiles}
}

func (s *ProfileService) EnsureProfile(ctx context.Context, accountID string) (*models.Profile, bool, error) {
	profile, created, err := s.profiles.Ensure(ctx, accountID, s.startingCredits)
	if err != nil {
		return nil, false, fmt.Errorf("ensure profile: %w", err)
	}
	return profile, created, nil
}
