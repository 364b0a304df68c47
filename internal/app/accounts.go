package app

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"time"

	"logiflow/api/internal/authpw"
)

type LoginResult struct {
	Token     string    `json:"token"`
	User      UserView  `json:"user"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func (s *Service) Register(ctx context.Context, username, email, password string) (UserView, error) {
	user, err := s.accounts.Register(ctx, authpw.RegisterRequest{Username: username, Email: email, Password: password})
	if err != nil {
		switch {
		case errors.Is(err, authpw.ErrMissingFields):
			return UserView{}, validationError("All fields are required")
		case errors.Is(err, authpw.ErrEmailTaken):
			return UserView{}, domainError(http.StatusConflict, "EMAIL_TAKEN", "Email already registered", nil)
		default:
			return UserView{}, infraError("Registration failed", err)
		}
	}
	return userView(user), nil
}

func (s *Service) Login(ctx context.Context, email, password string) (LoginResult, error) {
	result, err := s.accounts.Login(ctx, email, password)
	if err != nil {
		switch {
		case errors.Is(err, authpw.ErrMissingFields):
			return LoginResult{}, validationError("All fields are required")
		case errors.Is(err, authpw.ErrInvalidCredentials):
			return LoginResult{}, unauthorizedError("Invalid credentials")
		default:
			return LoginResult{}, infraError("Login failed", err)
		}
	}
	return LoginResult{Token: result.Token, User: userView(result.User), ExpiresAt: result.ExpiresAt}, nil
}

func (s *Service) Profile(ctx context.Context, userID int64) (UserView, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return UserView{}, notFoundError("User not found")
		}
		return UserView{}, infraError("Failed to load user", err)
	}
	return userView(user), nil
}
