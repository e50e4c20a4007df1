package gatekeep

import (
	"context"
	"fmt"
	"strings"
)

// FederatedVerifier finds or provisions users vouched for by an identity provider.
type FederatedVerifier struct {
	Store CredentialStore
}

// NewFederatedVerifier creates a FederatedVerifier over store.
func NewFederatedVerifier(store CredentialStore) *FederatedVerifier {
	return &FederatedVerifier{Store: store}
}

// VerifyOrProvision returns the user for profile.Email, creating it with the
// FederatedOnlyPassword sentinel on first login. Existing users are returned
// as is; there is no update path.
func (v *FederatedVerifier) VerifyOrProvision(ctx context.Context, profile Profile) (*User, error) {
	email := NormalizeEmail(profile.Email)
	if email == "" {
		return nil, ErrInvalidProfile
	}

	user, err := v.Store.FindByEmail(ctx, email)
	if err != nil {
		return nil, wrapError(KindStore, "failed to look up user", err)
	}
	if user != nil {
		return user, nil
	}

	// A concurrent first login for the same email loses the insert race
	// here and surfaces as a store error.
	user, err = v.Store.CreateUser(ctx, email, FederatedOnlyPassword)
	if err != nil {
		return nil, wrapError(KindStore, fmt.Sprintf("failed to provision %s user", providerName(profile)), err)
	}
	return user, nil
}

// ProfileFromUserInfo builds a Profile from a provider's userinfo document.
func ProfileFromUserInfo(provider string, userInfo map[string]any) Profile {
	p := Profile{Provider: provider}
	p.Email, _ = userInfo["email"].(string)
	p.Name, _ = userInfo["name"].(string)
	switch id := userInfo["id"].(type) {
	case string:
		p.Subject = id
	case float64:
		p.Subject = fmt.Sprintf("%.0f", id)
	}
	if p.Subject == "" {
		p.Subject, _ = userInfo["sub"].(string)
	}
	return p
}

func providerName(p Profile) string {
	if strings.TrimSpace(p.Provider) == "" {
		return "federated"
	}
	return p.Provider
}
