package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/burrow-ai/burrow/internal/domain"
)

const apiKeyPrefix = "brw_"

type TenantRepository interface {
	Create(ctx context.Context, tenant *domain.Tenant) error
	GetByID(ctx context.Context, tenantID string) (*domain.Tenant, error)
	GetByName(ctx context.Context, name string) (*domain.Tenant, error)
	List(ctx context.Context) ([]*domain.Tenant, error)
	Delete(ctx context.Context, tenantID string) error
}

type APIKeyRepository interface {
	Create(ctx context.Context, key *domain.APIKey) error
	GetByID(ctx context.Context, id string) (*domain.APIKey, error)
	GetByHash(ctx context.Context, hash string) (*domain.APIKey, error)
	GetByTenantID(ctx context.Context, tenantID string) ([]*domain.APIKey, error)
	Revoke(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
}

type AuthService struct {
	tenantRepo TenantRepository
	keyRepo    APIKeyRepository
	uuidGen    UUIDGenerator
}

func NewAuthService(tenantRepo TenantRepository, keyRepo APIKeyRepository, uuidGen UUIDGenerator) *AuthService {
	return &AuthService{
		tenantRepo: tenantRepo,
		keyRepo:    keyRepo,
		uuidGen:    uuidGen,
	}
}

func (s *AuthService) CreateTenant(ctx context.Context, name string) (*domain.Tenant, error) {
	if name == "" {
		return nil, domain.NewDomainError(domain.ErrCodeValidation, "tenant name is required")
	}

	if _, err := s.tenantRepo.GetByName(ctx, name); err == nil {
		return nil, domain.ErrTenantAlreadyExists
	} else if !errors.Is(err, domain.ErrTenantNotFound) {
		return nil, err
	}

	tenant := domain.NewTenant(s.uuidGen.NewString(), name, time.Now().UTC())
	if err := domain.ValidateTenant(tenant); err != nil {
		return nil, err
	}

	if err := s.tenantRepo.Create(ctx, tenant); err != nil {
		return nil, err
	}

	return tenant, nil
}

func (s *AuthService) GetTenant(ctx context.Context, tenantID string) (*domain.Tenant, error) {
	return s.tenantRepo.GetByID(ctx, tenantID)
}

func (s *AuthService) ListTenants(ctx context.Context) ([]*domain.Tenant, error) {
	return s.tenantRepo.List(ctx)
}

func (s *AuthService) CreateAPIKey(ctx context.Context, tenantID, name string) (string, error) {
	if tenantID == "" {
		return "", domain.NewDomainError(domain.ErrCodeValidation, "tenant ID is required")
	}
	if name == "" {
		return "", domain.NewDomainError(domain.ErrCodeValidation, "API key name is required")
	}

	_, err := s.tenantRepo.GetByID(ctx, tenantID)
	if err != nil {
		return "", err
	}

	token, err := generateAPIToken()
	if err != nil {
		return "", domain.NewDomainErrorWithCause(domain.ErrCodeInternalError, "failed to generate API key", err)
	}

	hash := hashToken(token)

	key := &domain.APIKey{
		ID:        s.uuidGen.NewString(),
		TenantID:  tenantID,
		Name:      name,
		KeyHash:   hash,
		CreatedAt: time.Now().UTC(),
		RevokedAt: nil,
	}

	if err := domain.ValidateAPIKey(key); err != nil {
		return "", err
	}

	if err := s.keyRepo.Create(ctx, key); err != nil {
		return "", err
	}

	return token, nil
}

// CreateAPIKeyWithToken stores a caller-provided token. Used for bootstrap
// where the key material is supplied through the environment.
func (s *AuthService) CreateAPIKeyWithToken(ctx context.Context, tenantID, name, token string) error {
	if !IsValidAPIToken(token) {
		return domain.ErrInvalidAPIKey
	}

	if _, err := s.tenantRepo.GetByID(ctx, tenantID); err != nil {
		return err
	}

	key := &domain.APIKey{
		ID:        s.uuidGen.NewString(),
		TenantID:  tenantID,
		Name:      name,
		KeyHash:   hashToken(token),
		CreatedAt: time.Now().UTC(),
		RevokedAt: nil,
	}

	if err := domain.ValidateAPIKey(key); err != nil {
		return err
	}

	return s.keyRepo.Create(ctx, key)
}

// GetAPIKeyByHash looks up the stored key record for a plaintext token.
func (s *AuthService) GetAPIKeyByHash(ctx context.Context, token string) (*domain.APIKey, error) {
	return s.keyRepo.GetByHash(ctx, hashToken(token))
}

// ValidateAPIKey resolves a presented token to its tenant.
func (s *AuthService) ValidateAPIKey(ctx context.Context, token string) (string, error) {
	if !IsValidAPIToken(token) {
		return "", domain.ErrInvalidAPIKey
	}

	hash := hashToken(token)

	key, err := s.keyRepo.GetByHash(ctx, hash)
	if err != nil {
		if errors.Is(err, domain.ErrAPIKeyNotFound) {
			return "", domain.ErrInvalidAPIKey
		}
		return "", err
	}

	if key.IsRevoked() {
		return "", domain.ErrAPIKeyRevoked
	}

	return key.TenantID, nil
}

func (s *AuthService) RevokeAPIKey(ctx context.Context, keyID string) error {
	if keyID == "" {
		return domain.NewDomainError(domain.ErrCodeValidation, "API key ID is required")
	}

	return s.keyRepo.Revoke(ctx, keyID)
}

func (s *AuthService) ListAPIKeys(ctx context.Context, tenantID string) ([]*domain.APIKey, error) {
	if tenantID == "" {
		return nil, domain.NewDomainError(domain.ErrCodeValidation, "tenant ID is required")
	}

	return s.keyRepo.GetByTenantID(ctx, tenantID)
}

func generateAPIToken() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return apiKeyPrefix + hex.EncodeToString(bytes), nil
}

func hashToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

func IsValidAPIToken(token string) bool {
	if !strings.HasPrefix(token, apiKeyPrefix) {
		return false
	}
	hexPart := token[len(apiKeyPrefix):]
	if len(hexPart) != 64 {
		return false
	}
	for _, c := range hexPart {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')) {
			return false
		}
	}
	return true
}
