package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/cfphub/cfpserver/internal/config"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
	"golang.org/x/oauth2/google"
)

// Provider performs the authorization-code handshake with one federated
// identity provider and maps its profile shape into an Assertion.
type Provider struct {
	name        string
	oauth       *oauth2.Config
	userInfoURL string
	mapProfile  func(payload []byte) (uid string, profile map[string]string, err error)
}

// Name returns the provider name, e.g. "github".
func (p *Provider) Name() string {
	return p.name
}

// AuthURL returns the provider authorization URL for the given CSRF state.
func (p *Provider) AuthURL(state string) string {
	return p.oauth.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

// Exchange trades an authorization code for an identity assertion: the
// token exchange happens server-to-server, then the short-lived access
// token fetches the provider profile.
func (p *Provider) Exchange(ctx context.Context, code string) (Assertion, error) {
	token, errExchange := p.oauth.Exchange(ctx, code)
	if errExchange != nil {
		return Assertion{}, fmt.Errorf("identity: exchange code: %w", errExchange)
	}

	client := p.oauth.Client(ctx, token)
	resp, errGet := client.Get(p.userInfoURL)
	if errGet != nil {
		return Assertion{}, fmt.Errorf("identity: fetch %s profile: %w", p.name, errGet)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return Assertion{}, fmt.Errorf("identity: %s profile endpoint returned %d", p.name, resp.StatusCode)
	}
	payload, errRead := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if errRead != nil {
		return Assertion{}, fmt.Errorf("identity: read %s profile: %w", p.name, errRead)
	}

	uid, profile, errMap := p.mapProfile(payload)
	if errMap != nil {
		return Assertion{}, errMap
	}
	return Assertion{
		Provider: p.name,
		UID:      uid,
		Profile:  profile,
		RawExtra: payload,
	}, nil
}

// Registry holds the configured federated providers.
type Registry struct {
	providers map[string]*Provider
}

// NewRegistry builds providers from configuration. Unknown provider names
// are rejected so a config typo fails at startup, not at first sign-in.
func NewRegistry(cfgs map[string]config.OAuthProviderConfig) (*Registry, error) {
	registry := &Registry{providers: make(map[string]*Provider, len(cfgs))}
	for name, cfg := range cfgs {
		provider, errBuild := buildProvider(strings.ToLower(strings.TrimSpace(name)), cfg)
		if errBuild != nil {
			return nil, errBuild
		}
		registry.providers[provider.name] = provider
	}
	return registry, nil
}

// Get returns the provider with the given name.
func (r *Registry) Get(name string) (*Provider, bool) {
	provider, ok := r.providers[strings.ToLower(strings.TrimSpace(name))]
	return provider, ok
}

func buildProvider(name string, cfg config.OAuthProviderConfig) (*Provider, error) {
	switch name {
	case "github":
		return &Provider{
			name: name,
			oauth: &oauth2.Config{
				ClientID:     cfg.ClientID,
				ClientSecret: cfg.ClientSecret,
				RedirectURL:  cfg.RedirectURL,
				Scopes:       []string{"read:user", "user:email"},
				Endpoint:     github.Endpoint,
			},
			userInfoURL: "https://api.github.com/user",
			mapProfile:  mapGitHubProfile,
		}, nil
	case "google":
		return &Provider{
			name: name,
			oauth: &oauth2.Config{
				ClientID:     cfg.ClientID,
				ClientSecret: cfg.ClientSecret,
				RedirectURL:  cfg.RedirectURL,
				Scopes:       []string{"openid", "email", "profile"},
				Endpoint:     google.Endpoint,
			},
			userInfoURL: "https://www.googleapis.com/oauth2/v2/userinfo",
			mapProfile:  mapGoogleProfile,
		}, nil
	default:
		return nil, fmt.Errorf("identity: unsupported provider %q", name)
	}
}

// mapGitHubProfile maps the GitHub /user response into profile attributes.
func mapGitHubProfile(payload []byte) (string, map[string]string, error) {
	var body struct {
		ID        int64  `json:"id"`
		Login     string `json:"login"`
		Name      string `json:"name"`
		Email     string `json:"email"`
		AvatarURL string `json:"avatar_url"`
	}
	if errDecode := json.Unmarshal(payload, &body); errDecode != nil {
		return "", nil, fmt.Errorf("identity: decode github profile: %w", errDecode)
	}
	if body.ID == 0 {
		return "", nil, fmt.Errorf("identity: github profile missing id")
	}
	return strconv.FormatInt(body.ID, 10), map[string]string{
		ProfileEmail:  body.Email,
		ProfileName:   body.Name,
		ProfileLogin:  body.Login,
		ProfileAvatar: body.AvatarURL,
	}, nil
}

// mapGoogleProfile maps the Google userinfo response into profile attributes.
func mapGoogleProfile(payload []byte) (string, map[string]string, error) {
	var body struct {
		ID      string `json:"id"`
		Email   string `json:"email"`
		Name    string `json:"name"`
		Picture string `json:"picture"`
	}
	if errDecode := json.Unmarshal(payload, &body); errDecode != nil {
		return "", nil, fmt.Errorf("identity: decode google profile: %w", errDecode)
	}
	if body.ID == "" {
		return "", nil, fmt.Errorf("identity: google profile missing id")
	}
	return body.ID, map[string]string{
		ProfileEmail:  body.Email,
		ProfileName:   body.Name,
		ProfileAvatar: body.Picture,
	}, nil
}
