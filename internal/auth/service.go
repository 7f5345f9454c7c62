package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"

	"github.com/bher20/tarifmanager/internal/storage"
)

// Roles.
const (
	RoleAdmin  = "admin"
	RoleEditor = "editor"
	RoleViewer = "viewer"
)

// Objects and actions checked by the API.
const (
	ObjSchedules = "schedules"
	ObjStatus    = "status"
	ObjLive      = "live"
	ObjJobs      = "jobs"
	ObjSettings  = "settings"

	ActRead  = "read"
	ActWrite = "write"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserExists         = errors.New("user already exists")
	ErrInvalidToken       = errors.New("invalid token")
	ErrTokenExpired       = errors.New("token expired")
	ErrUnknownRole        = errors.New("unknown role")
)

const rbacModel = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = (g(r.sub, p.sub) || r.sub == p.sub) && (r.obj == p.obj || p.obj == "*") && (r.act == p.act || p.act == "*")
`

var defaultPolicies = [][]string{
	{RoleAdmin, "*", "*"},
	{RoleEditor, ObjSchedules, ActRead},
	{RoleEditor, ObjSchedules, ActWrite},
	{RoleEditor, ObjStatus, ActRead},
	{RoleEditor, ObjLive, ActWrite},
	{RoleViewer, ObjSchedules, ActRead},
	{RoleViewer, ObjStatus, ActRead},
}

type Service struct {
	storage  storage.Storage
	enforcer *casbin.Enforcer
	now      func() time.Time
}

// NewService builds the RBAC enforcer on top of the stored policies,
// seeding the default role policies when none are stored.
func NewService(s storage.Storage) (*Service, error) {
	m, err := model.NewModelFromString(rbacModel)
	if err != nil {
		return nil, err
	}
	e, err := casbin.NewEnforcer(m, NewAdapter(s))
	if err != nil {
		return nil, err
	}
	for _, p := range defaultPolicies {
		if _, err := e.AddPolicy(p[0], p[1], p[2]); err != nil {
			return nil, err
		}
	}
	return &Service{storage: s, enforcer: e, now: time.Now}, nil
}

func validRole(role string) bool {
	return role == RoleAdmin || role == RoleEditor || role == RoleViewer
}

func (s *Service) Authenticate(ctx context.Context, username, password string) (*storage.User, error) {
	u, err := s.storage.GetUserByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return u, nil
}

func (s *Service) Register(ctx context.Context, username, password, role string) (*storage.User, error) {
	if !validRole(role) {
		return nil, ErrUnknownRole
	}
	existing, err := s.storage.GetUserByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrUserExists
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	now := s.now()
	u := storage.User{
		ID:           uuid.New().String(),
		Username:     username,
		PasswordHash: string(hash),
		Role:         role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.storage.CreateUser(ctx, u); err != nil {
		return nil, err
	}
	if _, err := s.enforcer.AddGroupingPolicy(u.ID, role); err != nil {
		return nil, err
	}
	log.Info().Str("user", username).Str("role", role).Msg("user registered")
	return &u, nil
}

func hashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// CreateToken issues an API token. The raw value is returned once; only its
// hash is stored.
func (s *Service) CreateToken(ctx context.Context, userID, name, role string, expiresAt *time.Time) (*storage.Token, string, error) {
	if !validRole(role) {
		return nil, "", ErrUnknownRole
	}
	raw := uuid.New().String() + uuid.New().String()
	t := storage.Token{
		ID:        uuid.New().String(),
		UserID:    userID,
		Name:      name,
		TokenHash: hashToken(raw),
		Role:      role,
		CreatedAt: s.now(),
		ExpiresAt: expiresAt,
	}
	if err := s.storage.CreateToken(ctx, t); err != nil {
		return nil, "", err
	}
	return &t, raw, nil
}

func (s *Service) ValidateToken(ctx context.Context, raw string) (*storage.Token, error) {
	t, err := s.storage.GetTokenByHash(ctx, hashToken(raw))
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, ErrInvalidToken
	}
	if t.ExpiresAt != nil && t.ExpiresAt.Before(s.now()) {
		return nil, ErrTokenExpired
	}
	if err := s.storage.UpdateTokenLastUsed(ctx, t.ID); err != nil {
		log.Warn().Err(err).Str("token", t.ID).Msg("failed to update token last use")
	}
	return t, nil
}

// Enforce checks whether sub (a role or a user id) may perform act on obj.
func (s *Service) Enforce(sub, obj, act string) (bool, error) {
	return s.enforcer.Enforce(sub, obj, act)
}

// LoadPolicy reloads the policies from storage and re-applies the defaults.
func (s *Service) LoadPolicy() error {
	if err := s.enforcer.LoadPolicy(); err != nil {
		return err
	}
	for _, p := range defaultPolicies {
		if _, err := s.enforcer.AddPolicy(p[0], p[1], p[2]); err != nil {
			return err
		}
	}
	return nil
}
