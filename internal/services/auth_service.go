package services

import (
	"encoding/json"
	"fmt"
	"strings"

	authorizer "github.com/localnerve/authorizer-go"
	"github.com/localnerve/librarydb/internal/config"
	"github.com/localnerve/librarydb/internal/utils"
	"go.uber.org/zap"
)

// ExternalUser is the part of an Authorizer user the library maps to a local account
type ExternalUser struct {
	ID        string   `json:"id"`
	Email     string   `json:"email"`
	GivenName *string  `json:"given_name"`
	Roles     []string `json:"roles"`
}

// Authorizer validates sessions issued by an external Authorizer instance
type Authorizer struct {
	client *authorizer.AuthorizerClient
}

// NewAuthorizer pings the Authorizer service and creates its client
func NewAuthorizer(cfg *config.Config, redirectURL string, log *zap.Logger) (*Authorizer, error) {
	if err := utils.PingAuthorizer(cfg.AuthzURL); err != nil {
		return nil, fmt.Errorf("authorizer ping failed: %w", err)
	}

	log.Info("Initializing Authorizer",
		zap.String("authorizer_url", cfg.AuthzURL),
		zap.String("client_id", cfg.AuthzClientID),
		zap.String("redirect_url", redirectURL),
	)

	client, err := authorizer.NewAuthorizerClient(cfg.AuthzClientID, cfg.AuthzURL, redirectURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create authorizer client: %w", err)
	}
	return &Authorizer{client: client}, nil
}

// ValidateSession validates a session cookie and returns its user
func (a *Authorizer) ValidateSession(cookie string) (*ExternalUser, error) {
	res, err := a.client.ValidateSession(&authorizer.ValidateSessionInput{
		Cookie: cookie,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: session validation failed: %v", ErrUnauthenticated, err)
	}

	// Check if session is valid
	if res == nil || !res.IsValid || res.User == nil {
		return nil, fmt.Errorf("%w: session is not valid", ErrUnauthenticated)
	}

	// Only a few fields are needed; round trip through JSON keeps this independent of the SDK's field types
	raw, err := json.Marshal(res.User)
	if err != nil {
		return nil, err
	}
	var user ExternalUser
	if err := json.Unmarshal(raw, &user); err != nil {
		return nil, err
	}
	user.Email = strings.TrimSpace(strings.ToLower(user.Email))
	if user.Email == "" {
		return nil, fmt.Errorf("%w: session has no email", ErrUnauthenticated)
	}
	return &user, nil
}
