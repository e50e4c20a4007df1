// Package saml implements login through a SAML 2.0 identity provider. The
// assertion from the IdP is turned into a gatekeep.Profile and handed to a
// gatekeep.ProfileHandlerFunc; no SAML session is kept.
package saml

import (
	"context"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/crewjam/saml"
	"github.com/crewjam/saml/samlsp"
	"github.com/gorilla/mux"

	gk "github.com/panyam/gatekeep"
)

type Provider struct {
	Middleware    *samlsp.Middleware
	Issuer        string
	HandleProfile gk.ProfileHandlerFunc

	// Where failed assertions are redirected. Defaults to "/login".
	AuthFailureUrl string

	Logger *slog.Logger
}

// LoadKeyPair reads the service provider's certificate and RSA key.
func LoadKeyPair(certFile, keyFile string) (*rsa.PrivateKey, *x509.Certificate, error) {
	keyPair, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, nil, fmt.Errorf("error loading key pair: %w", err)
	}
	leaf, err := x509.ParseCertificate(keyPair.Certificate[0])
	if err != nil {
		return nil, nil, fmt.Errorf("error parsing certificate: %w", err)
	}
	key, ok := keyPair.PrivateKey.(*rsa.PrivateKey)
	if !ok {
		return nil, nil, errors.New("saml key must be an RSA key")
	}
	return key, leaf, nil
}

// FetchIDPMetadata downloads the IdP's metadata document.
func FetchIDPMetadata(ctx context.Context, client *http.Client, metadataURL string) (*saml.EntityDescriptor, error) {
	u, err := url.Parse(metadataURL)
	if err != nil {
		return nil, fmt.Errorf("error parsing metadata url %q: %w", metadataURL, err)
	}
	return samlsp.FetchMetadata(ctx, client, *u)
}

// NewProvider creates a Provider. opts.URL is the root the /saml/* routes
// are mounted under.
func NewProvider(opts samlsp.Options, issuer string, handleProfile gk.ProfileHandlerFunc) (*Provider, error) {
	m, err := samlsp.New(opts)
	if err != nil {
		return nil, err
	}
	return &Provider{
		Middleware:     m,
		Issuer:         issuer,
		HandleProfile:  handleProfile,
		AuthFailureUrl: "/login",
		Logger:         slog.Default(),
	}, nil
}

// Register mounts the login, assertion consumer and metadata routes on rg.
func (p *Provider) Register(rg *mux.Router) {
	rg.HandleFunc("/saml/login", p.HandleLogin).Methods(http.MethodGet)
	rg.HandleFunc("/saml/acs", p.HandleACS).Methods(http.MethodPost)
	rg.HandleFunc("/saml/metadata", p.Middleware.ServeMetadata).Methods(http.MethodGet)
}

// HandleLogin sends the browser to the IdP with a tracked authn request. The
// callbackURL query parameter is remembered with the tracked request.
func (p *Provider) HandleLogin(w http.ResponseWriter, r *http.Request) {
	m := p.Middleware
	idpURL := m.ServiceProvider.GetSSOBindingLocation(saml.HTTPRedirectBinding)
	authReq, err := m.ServiceProvider.MakeAuthenticationRequest(idpURL, saml.HTTPRedirectBinding, m.ResponseBinding)
	if err != nil {
		p.Logger.Error("error creating authn request", "err", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	returnTo := &url.URL{Path: "/"}
	if cb := r.URL.Query().Get("callbackURL"); strings.HasPrefix(cb, "/") && !strings.HasPrefix(cb, "//") {
		if u, err := url.Parse(cb); err == nil {
			returnTo = u
		}
	}
	relayState, err := m.RequestTracker.TrackRequest(w, &http.Request{URL: returnTo}, authReq.ID)
	if err != nil {
		p.Logger.Error("error tracking authn request", "err", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	redirectURL, err := authReq.Redirect(relayState, &m.ServiceProvider)
	if err != nil {
		p.Logger.Error("error creating redirect URI", "err", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, redirectURL.String(), http.StatusFound)
}

// HandleACS validates the IdP's response and logs the user in.
func (p *Provider) HandleACS(w http.ResponseWriter, r *http.Request) {
	m := p.Middleware
	if err := r.ParseForm(); err != nil {
		p.fail(w, r, fmt.Errorf("error parsing ACS form: %w", err))
		return
	}

	possibleRequestIDs := []string{}
	if m.ServiceProvider.AllowIDPInitiated {
		possibleRequestIDs = append(possibleRequestIDs, "")
	}
	for _, tr := range m.RequestTracker.GetTrackedRequests(r) {
		possibleRequestIDs = append(possibleRequestIDs, tr.SAMLRequestID)
	}

	assertion, err := m.ServiceProvider.ParseResponse(r, possibleRequestIDs)
	if err != nil {
		var invalid *saml.InvalidResponseError
		if errors.As(err, &invalid) {
			err = fmt.Errorf("%w: %v", err, invalid.PrivateErr)
		}
		p.fail(w, r, err)
		return
	}

	if relayState := r.Form.Get("RelayState"); relayState != "" {
		if tr, err := m.RequestTracker.GetTrackedRequest(r, relayState); err == nil {
			_ = m.RequestTracker.StopTrackingRequest(w, r, relayState)
			r = r.WithContext(gk.ContextWithCallbackURL(r.Context(), tr.URI))
		}
	}
	p.HandleProfile(ProfileFromAssertion(p.Issuer, assertion), w, r)
}

func (p *Provider) fail(w http.ResponseWriter, r *http.Request, err error) {
	p.Logger.Info("saml login failed, redirecting", "issuer", p.Issuer, "err", err)
	http.Redirect(w, r, p.AuthFailureUrl, http.StatusFound)
}

const emailNameIDFormat = "urn:oasis:names:tc:SAML:1.1:nameid-format:emailAddress"

// ProfileFromAssertion picks the email and display name out of an assertion.
// Attribute names vary between IdPs so a few common spellings are accepted.
// If no email attribute exists, an email formatted NameID is used.
func ProfileFromAssertion(issuer string, assertion *saml.Assertion) gk.Profile {
	profile := gk.Profile{Provider: "saml"}
	if issuer != "" {
		profile.Provider = issuer
	}

	var nameID *saml.NameID
	if assertion.Subject != nil {
		nameID = assertion.Subject.NameID
	}
	if nameID != nil {
		profile.Subject = nameID.Value
	}

	for _, statement := range assertion.AttributeStatements {
		for _, attr := range statement.Attributes {
			if len(attr.Values) == 0 {
				continue
			}
			value := attr.Values[0].Value
			switch {
			case profile.Email == "" && isEmailAttribute(attr):
				profile.Email = value
			case profile.Name == "" && isNameAttribute(attr):
				profile.Name = value
			}
		}
	}

	if profile.Email == "" && nameID != nil && nameID.Format == emailNameIDFormat {
		profile.Email = nameID.Value
	}
	return profile
}

func isEmailAttribute(attr saml.Attribute) bool {
	switch attr.Name {
	case "email", "mail", "urn:oid:0.9.2342.19200300.100.1.3":
		return true
	}
	return strings.HasSuffix(attr.Name, "/claims/emailaddress")
}

func isNameAttribute(attr saml.Attribute) bool {
	switch attr.Name {
	case "name", "displayName", "urn:oid:2.16.840.1.113730.3.1.241":
		return true
	}
	return strings.HasSuffix(attr.Name, "/claims/name")
}
