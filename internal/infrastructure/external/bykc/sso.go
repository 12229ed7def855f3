package bykc

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"regexp"
	"strings"
	"time"
)

// Credentials identify the user against the university's single-sign-on
// service. Immutable for the process lifetime.
type Credentials struct {
	Username string
	Password string
}

// Authenticator performs the full credential exchange and yields a fresh
// session token. The production implementation walks the CAS redirect chain;
// tests substitute a stub.
type Authenticator interface {
	Login(ctx context.Context) (token string, err error)
}

// Patterns fixed by the SSO service and the enrollment frontend.
var (
	// executionPattern extracts the one-time execution value from the SSO
	// login form.
	executionPattern = regexp.MustCompile(`name="execution" value="([^"]+)"`)

	// tokenPattern extracts the session token from the final redirect URL.
	tokenPattern = regexp.MustCompile(`token=(\w+)`)
)

// SSOConfig configures the CAS login flow.
type SSOConfig struct {
	// RootURL is the enrollment service root (the "/sscv" prefix is appended
	// per endpoint).
	RootURL string

	// LoginURL is the SSO credential-submission endpoint.
	LoginURL string

	// UserAgent is sent on every request; the SSO frontend rejects unknown
	// agents.
	UserAgent string

	// Timeout bounds each HTTP request in the chain.
	Timeout time.Duration

	// Logger for structured logging.
	Logger *slog.Logger
}

// DefaultSSOConfig returns sensible defaults for the given service root.
func DefaultSSOConfig(rootURL string) SSOConfig {
	return SSOConfig{
		RootURL:  rootURL,
		LoginURL: "https://sso.buaa.edu.cn/login",
		Timeout:  30 * time.Second,
	}
}

// SSOClient implements Authenticator against the university CAS service.
//
// The exchange: ask the enrollment service for its CAS entry point, follow
// the redirect into the SSO form, scrape the execution value, post the
// credentials, then walk the redirect chain by hand until a URL carries the
// token fragment.
type SSOClient struct {
	config SSOConfig
	creds  Credentials
	logger *slog.Logger
}

// NewSSOClient creates a CAS authenticator.
func NewSSOClient(config SSOConfig, creds Credentials) *SSOClient {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.LoginURL == "" {
		config.LoginURL = "https://sso.buaa.edu.cn/login"
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	return &SSOClient{
		config: config,
		creds:  creds,
		logger: config.Logger,
	}
}

// Login walks the SSO exchange and returns the extracted token.
func (s *SSOClient) Login(ctx context.Context) (string, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return "", newError(KindLoginError, "create cookie jar: %v", err)
	}

	// Redirects are followed manually: the token only ever appears in a
	// Location header, and Go's default client would swallow it.
	noRedirect := &http.Client{
		Timeout: s.config.Timeout,
		Jar:     jar,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	follow := &http.Client{Timeout: s.config.Timeout, Jar: jar}

	entry := s.config.RootURL + "/sscv/cas/login"
	location, err := s.fetchRedirect(ctx, noRedirect, entry)
	if err != nil {
		return "", err
	}

	location, err = s.submitCredentials(ctx, noRedirect, follow, location)
	if err != nil {
		return "", err
	}

	return s.chaseToken(ctx, noRedirect, location)
}

// fetchRedirect fetches a URL without following redirects and returns the
// Location target, or the URL itself when the service answers directly.
func (s *SSOClient) fetchRedirect(ctx context.Context, client *http.Client, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", newError(KindLoginError, "create request: %v", err)
	}
	req.Header.Set("User-Agent", s.config.UserAgent)

	resp, err := client.Do(req)
	if err != nil {
		return "", newError(KindLoginError, "network error: %v", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode == http.StatusMovedPermanently || resp.StatusCode == http.StatusFound {
		return resp.Header.Get("Location"), nil
	}
	return rawURL, nil
}

// submitCredentials loads the SSO form behind the CAS redirect, scrapes the
// execution value and posts the login form. The SSO answers a successful
// login with a 302 whose Location continues the chain.
func (s *SSOClient) submitCredentials(ctx context.Context, noRedirect, follow *http.Client, formURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, formURL, nil)
	if err != nil {
		return "", newError(KindLoginError, "create request: %v", err)
	}
	req.Header.Set("User-Agent", s.config.UserAgent)

	resp, err := follow.Do(req)
	if err != nil {
		return "", newError(KindLoginError, "network error: %v", err)
	}
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return "", newError(KindLoginError, "read login form: %v", err)
	}

	match := executionPattern.FindSubmatch(body)
	if match == nil {
		return "", newError(KindLoginError, "execution value not found in login form")
	}

	form := url.Values{
		"username":  {s.creds.Username},
		"password":  {s.creds.Password},
		"submit":    {"登录"},
		"type":      {"username_password"},
		"execution": {string(match[1])},
		"_eventId":  {"submit"},
	}

	post, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.LoginURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", newError(KindLoginError, "create request: %v", err)
	}
	post.Header.Set("User-Agent", s.config.UserAgent)
	post.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	postResp, err := noRedirect.Do(post)
	if err != nil {
		return "", newError(KindLoginError, "network error: %v", err)
	}
	defer postResp.Body.Close()
	io.Copy(io.Discard, postResp.Body)

	if postResp.StatusCode != http.StatusFound {
		return "", newError(KindLoginError, "credentials rejected (sso answered %d)", postResp.StatusCode)
	}
	return postResp.Header.Get("Location"), nil
}

// maxRedirectHops caps the post-login redirect chain. The real chain is
// three hops; the cap only guards against a redirect cycle.
const maxRedirectHops = 10

// chaseToken follows the post-login redirect chain manually until a URL
// matches the token pattern.
func (s *SSOClient) chaseToken(ctx context.Context, client *http.Client, location string) (string, error) {
	for hop := 0; hop < maxRedirectHops; hop++ {
		if match := tokenPattern.FindStringSubmatch(location); match != nil {
			s.logger.Info("sso login succeeded")
			return match[1], nil
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
		if err != nil {
			return "", newError(KindLoginError, "create request: %v", err)
		}
		req.Header.Set("User-Agent", s.config.UserAgent)

		resp, err := client.Do(req)
		if err != nil {
			return "", newError(KindLoginError, "network error: %v", err)
		}
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		if resp.StatusCode != http.StatusMovedPermanently && resp.StatusCode != http.StatusFound {
			return "", newError(KindLoginError, "token not found in redirect chain (stopped at %d)", resp.StatusCode)
		}
		location = resp.Header.Get("Location")
	}
	return "", newError(KindLoginError, "token not found after %d redirects", maxRedirectHops)
}
