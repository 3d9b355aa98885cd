package services

import (
	"whisper/auth"
	"whisper/domain"
	"whisper/errors"
	"whisper/repositories"
)

type IAuthService interface {
	Register(username, password string) (Token, domain.User, error)
	Login(username, password string) (Token, domain.User, error)
}

type Token string

// AuthService issues the connection-time credentials the live channel
// consumes. It sits on the request/response surface; the realtime layer
// only ever sees the verified claims.
type AuthService struct {
	users  repositories.IUserRepository
	tokens *auth.TokenManager
}

func NewAuthService(users repositories.IUserRepository, tokens *auth.TokenManager) *AuthService {
	return &AuthService{users: users, tokens: tokens}
}

func (s *AuthService) Register(username, password string) (Token, domain.User, error) {
	req := auth.CredentialsRequest{Username: username, Password: password}

	// Validate before any expensive cryptographic operation.
	if err := auth.ValidateRegister(req); err != nil {
		return "", domain.User{}, err
	}

	// Hashing happens here so the repository never sees a plain password.
	hashed, err := auth.HashPassword(password)
	if err != nil {
		return "", domain.User{}, errors.Store("hash password", err)
	}

	user, err := s.users.CreateUser(username, hashed)
	if err != nil {
		return "", domain.User{}, err
	}

	token, err := s.tokens.Generate(user.ID, user.Username)
	if err != nil {
		return "", domain.User{}, errors.ErrTokenGeneration
	}
	return Token(token), user, nil
}

func (s *AuthService) Login(username, password string) (Token, domain.User, error) {
	req := auth.CredentialsRequest{Username: username, Password: password}
	if err := auth.ValidateLogin(req); err != nil {
		return "", domain.User{}, err
	}

	record, err := s.users.GetByUsername(username)
	if err != nil {
		// Generic error to prevent user enumeration.
		return "", domain.User{}, errors.ErrInvalidCredentials
	}

	match, err := auth.ComparePassword(password, record.PasswordHash)
	if err != nil || !match {
		return "", domain.User{}, errors.ErrInvalidCredentials
	}

	token, err := s.tokens.Generate(record.ID, record.Username)
	if err != nil {
		return "", domain.User{}, errors.ErrTokenGeneration
	}
	return Token(token), domain.User{
		ID:       record.ID,
		Username: record.Username,
		Online:   record.Online,
	}, nil
}
