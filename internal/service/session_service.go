package service

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/noah-isme/lti-assignments-api/internal/dto"
	"github.com/noah-isme/lti-assignments-api/internal/models"
	"github.com/noah-isme/lti-assignments-api/internal/repository"
	appErrors "github.com/noah-isme/lti-assignments-api/pkg/errors"
)

const sessionIssuer = "lti-assignments-api"

// SessionConfig signs session tokens.
type SessionConfig struct {
	Secret string
	TTL    time.Duration
}

// SessionService turns a verified launch into a bearer token carrying the session context, and back.
type SessionService struct {
	consumers consumerReader
	roles     *RoleResolver
	validator *validator.Validate
	logger    *zap.Logger
	cfg       SessionConfig
	now       func() time.Time
}

// NewSessionService constructs the service.
func NewSessionService(consumers consumerReader, roles *RoleResolver, validate *validator.Validate, logger *zap.Logger, cfg SessionConfig) *SessionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 8 * time.Hour
	}
	return &SessionService{consumers: consumers, roles: roles, validator: validate, logger: logger, cfg: cfg, now: time.Now}
}

// Issue signs a session token for a launch of an active consumer.
func (s *SessionService) Issue(ctx context.Context, launch dto.LaunchContext) (*dto.SessionToken, error) {
	if err := s.validator.Struct(launch); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid launch context")
	}
	consumer, err := s.consumers.GetByID(ctx, launch.ConsumerID)
	if err != nil && !repository.IsNoRows(err) {
		return nil, internalError(err, "failed to load consumer")
	}
	if consumer == nil || consumer.Status != models.ConsumerStatusActive {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "Consumer is not registered")
	}
	role, ok := s.roles.Resolve(launch.Roles)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "Launch role is not supported")
	}

	issuedAt := s.now().UTC()
	expiresAt := issuedAt.Add(s.cfg.TTL)
	claims := &models.SessionClaims{
		Session: models.Session{
			ConsumerID:       launch.ConsumerID,
			CourseID:         launch.CourseID,
			UserID:           launch.UserID,
			Role:             role,
			ExtensionMinutes: launch.ExtensionMinutes,
			ReturnID:         launch.ReturnID,
		},
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    sessionIssuer,
			Subject:   launch.UserID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.cfg.Secret))
	if err != nil {
		return nil, internalError(err, "failed to sign session")
	}
	s.logger.Sugar().Infow("session issued", "consumer_id", launch.ConsumerID, "course_id", launch.CourseID, "role", role)
	return &dto.SessionToken{Token: signed, ExpiresAt: expiresAt, Role: role}, nil
}

// ValidateToken parses a bearer token and returns its claims.
func (s *SessionService) ValidateToken(tokenString string) (*models.SessionClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &models.SessionClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.cfg.Secret), nil
	}, jwt.WithTimeFunc(s.now), jwt.WithIssuer(sessionIssuer))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid session token")
	}
	claims, ok := token.Claims.(*models.SessionClaims)
	if !ok || !token.Valid {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid session claims")
	}
	if claims.Role != models.RoleInstructor && claims.Role != models.RoleLearner {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid session role")
	}
	return claims, nil
}
