package session

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/spinr-app/appcore/api"
	"github.com/spinr-app/appcore/cache"
	"github.com/spinr-app/appcore/credential"
)

// RequestCode asks the backend to send a verification code to phone. The
// returned delivery carries the code itself when the backend runs in
// development mode.
func (m *Manager) RequestCode(ctx context.Context, phone string) (api.CodeDelivery, error) {
	return api.Post[api.CodeDelivery](ctx, m.client, "/auth/send-otp", api.SendCodeRequest{Phone: phone})
}

// SignIn exchanges a verification code for a session. On success the
// bearer token is persisted, the profile is cached, and the session
// becomes StateHydrated.
func (m *Manager) SignIn(ctx context.Context, phone, code string) (Session, error) {
	auth, err := api.Post[api.AuthResponse](ctx, m.client, "/auth/verify-otp", api.VerifyCodeRequest{Phone: phone, Code: code})
	if err != nil {
		return m.Snapshot(), err
	}

	if err := m.tokens.Save(ctx, auth.Token); err != nil {
		return m.Snapshot(), fmt.Errorf("persisting session token: %w", err)
	}
	_ = m.cache.Set(ctx, cache.UserProfileKey, auth.User, m.profileTTL)

	next := Session{
		State:      StateHydrated,
		Credential: credential.KindBearer,
		Token:      auth.Token,
		Profile:    &auth.User,
	}
	if auth.User.IsDriver {
		next.DriverProfile = m.fetchDriver(ctx)
	}

	log.Info().Bool("new_user", auth.IsNewUser).Msg("signed in")

	m.mu.Lock()
	gen := m.gen
	m.mu.Unlock()
	return m.apply(gen, next), nil
}

// UpdateProfile completes or edits the account profile. The cached copy
// and the session snapshot are replaced with the backend's response.
func (m *Manager) UpdateProfile(ctx context.Context, req api.CreateProfileRequest) (api.UserProfile, error) {
	profile, err := api.Post[api.UserProfile](ctx, m.client, "/users/profile", req)
	if err != nil {
		return api.UserProfile{}, err
	}

	m.publishProfile(ctx, profile)
	return profile, nil
}

// SetProfileImage uploads a new profile image and applies the updated
// profile the backend returns.
func (m *Manager) SetProfileImage(ctx context.Context, content io.Reader, filename string) (api.UserProfile, error) {
	profile, err := api.UploadFile[api.UserProfile](
		ctx, m.client,
		http.MethodPut, "/users/profile-image",
		"file", filename, content, nil,
	)
	if err != nil {
		return api.UserProfile{}, err
	}

	m.publishProfile(ctx, profile)
	return profile, nil
}

// publishProfile replaces the cached profile and the snapshot field after
// a successful mutation.
func (m *Manager) publishProfile(ctx context.Context, profile api.UserProfile) {
	if err := m.cache.Remove(ctx, cache.UserProfileKey); err != nil {
		log.Warn().Err(err).Msg("invalidating cached profile")
	}
	_ = m.cache.Set(ctx, cache.UserProfileKey, profile, m.profileTTL)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.current.Profile = &profile
}
