package services

import (
	"context"
	"errors"

	"emergency-backend/internal/models"
	"emergency-backend/internal/repository"
	"emergency-backend/pkg/jwt"

	"golang.org/x/crypto/bcrypt"
)

// AuthService handles registration and login for the user directory. The
// coordinator never touches credentials; it only consumes the identities
// this service resolves.
type AuthService struct {
	userRepo *repository.UserRepository
	jwtUtil  *jwt.JWTUtil
}

func NewAuthService(userRepo *repository.UserRepository, jwtUtil *jwt.JWTUtil) *AuthService {
	return &AuthService{
		userRepo: userRepo,
		jwtUtil:  jwtUtil,
	}
}

type RegisterRequest struct {
	FullName      string    `json:"fullName" validate:"required,min=2,max=100"`
	Email         string    `json:"email" validate:"required,email"`
	Password      string    `json:"password" validate:"required,min=8"`
	ContactNumber string    `json:"contactNumber" validate:"required,len=10,numeric"`
	Profession    string    `json:"profession"`
	Coordinates   []float64 `json:"coordinates" validate:"required,len=2"`
	Address       string    `json:"address"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type LoginResponse struct {
	User  *models.AuthUser `json:"user"`
	Token string           `json:"token"`
}

func (s *AuthService) Register(ctx context.Context, req *RegisterRequest) (*LoginResponse, error) {
	point := models.NewGeoPoint(req.Coordinates[0], req.Coordinates[1])
	if !point.Valid() {
		return nil, newError(KindValidation, "coordinates out of range")
	}

	if _, err := s.userRepo.FindByEmail(ctx, req.Email); err == nil {
		return nil, newError(KindValidation, "email is already registered")
	} else if !errors.Is(err, repository.ErrUserNotFound) {
		return nil, wrapDependency("directory lookup failed", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, wrapDependency("failed to hash password", err)
	}

	user := &models.User{
		FullName:      req.FullName,
		Email:         req.Email,
		Password:      string(hash),
		ContactNumber: req.ContactNumber,
		Profession:    req.Profession,
		Location:      point,
		Address:       req.Address,
	}

	created, err := s.userRepo.Create(ctx, user)
	if err != nil {
		return nil, wrapDependency("failed to create user", err)
	}

	return s.loginResponse(created)
}

func (s *AuthService) Login(ctx context.Context, req *LoginRequest) (*LoginResponse, error) {
	user, err := s.userRepo.FindByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, newError(KindAuthorization, "invalid credentials")
		}
		return nil, wrapDependency("directory lookup failed", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		return nil, newError(KindAuthorization, "invalid credentials")
	}

	return s.loginResponse(user)
}

func (s *AuthService) GetProfile(ctx context.Context, userID string) (*models.User, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, newError(KindNotFound, "user not found")
		}
		return nil, wrapDependency("directory lookup failed", err)
	}
	return user, nil
}

type UpdateLocationRequest struct {
	Coordinates []float64 `json:"coordinates" validate:"required,len=2"`
	Address     string    `json:"address"`
}

// UpdateLocation moves the user's directory location. Alerts already raised
// keep their creation-time recipient snapshots.
func (s *AuthService) UpdateLocation(ctx context.Context, userID string, req *UpdateLocationRequest) (*models.User, error) {
	point := models.NewGeoPoint(req.Coordinates[0], req.Coordinates[1])
	if !point.Valid() {
		return nil, newError(KindValidation, "coordinates out of range")
	}

	user, err := s.userRepo.UpdateLocation(ctx, userID, point, req.Address)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, newError(KindNotFound, "user not found")
		}
		return nil, wrapDependency("failed to update location", err)
	}
	return user, nil
}

func (s *AuthService) loginResponse(user *models.User) (*LoginResponse, error) {
	token, err := s.jwtUtil.GenerateToken(user.ID.Hex(), user.Email)
	if err != nil {
		return nil, wrapDependency("failed to generate token", err)
	}

	return &LoginResponse{
		User: &models.AuthUser{
			ID:            user.ID.Hex(),
			FullName:      user.FullName,
			Email:         user.Email,
			ContactNumber: user.ContactNumber,
		},
		Token: token,
	}, nil
}
