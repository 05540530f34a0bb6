package usecase

import (
	"context"

	"parcel-share/internal/data/repository"
	"parcel-share/internal/dto/response"
	"parcel-share/pkg/utils"

	"go.uber.org/zap"
)

type UserService interface {
	GetProfile(ctx context.Context, actor Actor) (*response.ProfileResponse, error)
}

type userService struct {
	store repository.Store
	log   *zap.Logger
}

func NewUserService(d Deps) UserService {
	return &userService{
		store: d.Store,
		log:   d.Log.With(zap.String("service", "user")),
	}
}

// GetProfile returns the user with the payout account state, which decides
// whether they can accept bookings.
func (us *userService) GetProfile(ctx context.Context, actor Actor) (*response.ProfileResponse, error) {
	repo := us.store.Repo()

	user, err := repo.User.FindByID(ctx, actor.ID)
	if err != nil {
		us.log.Error("Failed to find user", zap.Error(err), zap.String("user_id", actor.ID.String()))
		return nil, utils.ErrInternal("failed to get profile", err)
	}
	if user == nil {
		return nil, utils.ErrNotFound("user")
	}

	acct, err := repo.PayoutAccount.FindByUserID(ctx, actor.ID)
	if err != nil {
		return nil, utils.ErrInternal("failed to get profile", err)
	}

	resp := &response.ProfileResponse{UserResponse: response.UserToResponse(user)}
	if acct != nil {
		p := response.PayoutAccountToResponse(acct)
		resp.PayoutAccount = &p
	}
	return resp, nil
}
