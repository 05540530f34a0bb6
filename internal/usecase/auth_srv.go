package usecase

import (
	"context"
	"net/http"
	"time"

	"parcel-share/internal/data/entity"
	"parcel-share/internal/data/repository"
	"parcel-share/internal/dto/request"
	"parcel-share/internal/dto/response"
	"parcel-share/pkg/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type AuthService interface {
	Register(ctx context.Context, req *request.RegisterRequest) (*response.AuthResponse, error)
	Login(ctx context.Context, req *request.LoginRequest) (*response.AuthResponse, error)
	Logout(ctx context.Context, sessionToken string) error
	// CleanExpiredSessions purges sessions past their expiry; run periodically.
	CleanExpiredSessions(ctx context.Context) (int64, error)
}

type authService struct {
	deps   Deps
	store  repository.Store
	config *utils.Config
	log    *zap.Logger
}

func NewAuthService(d Deps) AuthService {
	return &authService{
		deps:   d,
		store:  d.Store,
		config: d.Config,
		log:    d.Log.With(zap.String("service", "auth")),
	}
}

func errInvalidCredentials() *utils.AppError {
	return utils.NewAppError(utils.CodeInvalidCredentials, http.StatusUnauthorized, "invalid credentials")
}

func (s *authService) Register(ctx context.Context, req *request.RegisterRequest) (*response.AuthResponse, error) {
	// 1. Validasi input
	if err := validate(req); err != nil {
		s.log.Warn("Register validation failed", zap.Error(err))
		return nil, err
	}

	repo := s.store.Repo()

	// 2. Cek email sudah terdaftar
	existingUser, err := repo.User.FindByEmail(ctx, req.Email)
	if err != nil {
		return nil, utils.ErrInternal("failed to check email", err)
	}
	if existingUser != nil {
		return nil, utils.ErrValidation(map[string]string{"Email": "Email already registered"})
	}

	// 3. Cek username sudah dipakai
	existingUser, err = repo.User.FindByUsername(ctx, req.Username)
	if err != nil {
		return nil, utils.ErrInternal("failed to check username", err)
	}
	if existingUser != nil {
		return nil, utils.ErrValidation(map[string]string{"Username": "Username already taken"})
	}

	// 4. Hash password
	hashedPassword, err := utils.HashPassword(req.Password)
	if err != nil {
		return nil, utils.ErrInternal("failed to process password", err)
	}

	// 5. Create user and the first session together
	now := s.deps.now()
	user := &entity.User{
		Base: entity.Base{
			ID:        uuid.New(),
			CreatedAt: now,
			UpdatedAt: now,
		},
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: hashedPassword,
		Phone:        req.Phone,
		Role:         entity.RoleCustomer,
		IsActive:     true,
	}

	var session *entity.Session
	err = s.store.WithinTx(ctx, func(repo *repository.Repository) error {
		if err := repo.User.Create(ctx, user); err != nil {
			return err
		}
		session, err = s.createSession(ctx, repo, user.ID, req.ClientInfo)
		return err
	})
	if err != nil {
		s.log.Error("Failed to create user", zap.Error(err), zap.String("email", req.Email))
		return nil, utils.ErrInternal("failed to create account", err)
	}

	s.log.Info("User registered",
		zap.String("user_id", user.ID.String()),
		zap.String("email", user.Email))

	return s.authResponse(user, session)
}

func (s *authService) Login(ctx context.Context, req *request.LoginRequest) (*response.AuthResponse, error) {
	// 1. Validasi
	if err := validate(req); err != nil {
		return nil, err
	}

	repo := s.store.Repo()

	// 2. Find user by email, then by username
	user, err := repo.User.FindByEmail(ctx, req.Username)
	if err != nil {
		return nil, utils.ErrInternal("failed to find user", err)
	}
	if user == nil {
		user, err = repo.User.FindByUsername(ctx, req.Username)
		if err != nil {
			return nil, utils.ErrInternal("failed to find user", err)
		}
	}

	// 3. User not found
	if user == nil {
		s.log.Warn("User not found for login", zap.String("identifier", req.Username))
		return nil, errInvalidCredentials()
	}

	// 4. Check password
	if !utils.CheckPasswordHash(req.Password, user.PasswordHash) {
		s.log.Warn("Invalid password", zap.String("user_id", user.ID.String()))
		return nil, errInvalidCredentials()
	}

	// 5. Check if user is active
	if !user.IsActive {
		s.log.Warn("Inactive user tried to login", zap.String("user_id", user.ID.String()))
		return nil, utils.ErrForbidden("account is deactivated")
	}

	// 6. Create session
	session, err := s.createSession(ctx, repo, user.ID, req.ClientInfo)
	if err != nil {
		return nil, utils.ErrInternal("failed to create session", err)
	}

	s.log.Info("User logged in",
		zap.String("user_id", user.ID.String()),
		zap.String("username", user.Username),
		zap.String("ip", req.IPAddress))

	return s.authResponse(user, session)
}

func (s *authService) Logout(ctx context.Context, sessionToken string) error {
	token, err := uuid.Parse(sessionToken)
	if err != nil {
		return utils.ErrUnauthorized("invalid token format")
	}

	if err := s.store.Repo().Session.Revoke(ctx, token); err != nil {
		return utils.ErrInternal("failed to logout", err)
	}

	s.log.Info("User logged out")
	return nil
}

func (s *authService) CleanExpiredSessions(ctx context.Context) (int64, error) {
	n, err := s.store.Repo().Session.CleanExpiredSessions(ctx)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.log.Info("Expired sessions cleaned", zap.Int64("count", n))
	}
	return n, nil
}

// ==================== HELPER METHODS ====================

func (s *authService) createSession(ctx context.Context, repo *repository.Repository, userID uuid.UUID, client request.ClientInfo) (*entity.Session, error) {
	hours := s.config.Auth.ExpiryHours
	if hours <= 0 {
		hours = 24
	}
	now := s.deps.now()
	session := &entity.Session{
		BaseSimple: entity.BaseSimple{
			ID:        uuid.New(),
			CreatedAt: now,
		},
		UserID:    userID,
		Token:     uuid.New(),
		UserAgent: utils.OptionalString(client.UserAgent),
		IPAddress: utils.OptionalString(client.IPAddress),
		ExpiresAt: now.Add(time.Duration(hours) * time.Hour),
	}

	if err := repo.Session.Create(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// authResponse signs the access token; its sid claim points at the session row.
func (s *authService) authResponse(user *entity.User, session *entity.Session) (*response.AuthResponse, error) {
	token, err := utils.GenerateToken(s.config.Auth.JWTSecret, user.ID, session.Token, string(user.Role), session.ExpiresAt)
	if err != nil {
		return nil, utils.ErrInternal("failed to sign token", err)
	}

	return &response.AuthResponse{
		UserID:    user.ID.String(),
		Token:     token,
		ExpiresAt: session.ExpiresAt,
		Email:     user.Email,
		Username:  user.Username,
		Role:      user.Role,
	}, nil
}
