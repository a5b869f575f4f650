package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	apperrors "github.com/jrsteele09/go-session-gate/internal/errors"
	"github.com/jrsteele09/go-session-gate/users"
	"github.com/pkg/errors"
)

const (
	authPath        = "/auth/v1"
	headerAPIKey    = "apikey"
	contentTypeJSON = "application/json"

	// maxResponseBytes bounds how much of a provider response is read.
	maxResponseBytes = 1 << 20
)

// GoTrue is a Provider backed by the hosted identity service REST API
// mounted at <project url>/auth/v1.
type GoTrue struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	nowFunc    func() time.Time
}

var _ Provider = (*GoTrue)(nil)

type Option func(*GoTrue)

// WithHTTPClient overrides the client used for provider calls.
func WithHTTPClient(c *http.Client) Option {
	return func(g *GoTrue) {
		if c != nil {
			g.httpClient = c
		}
	}
}

// WithNowFunc overrides the clock used to compute session expiry.
func WithNowFunc(now func() time.Time) Option {
	return func(g *GoTrue) {
		if now != nil {
			g.nowFunc = now
		}
	}
}

// NewGoTrue returns a provider for the project at projectURL authenticating
// with apiKey (the public anon key or the service role key).
func NewGoTrue(projectURL, apiKey string, opts ...Option) *GoTrue {
	g := &GoTrue{
		baseURL:    strings.TrimRight(projectURL, "/") + authPath,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		nowFunc:    time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *GoTrue) SignInWithPassword(ctx context.Context, email, password string) (*AuthResponse, error) {
	var tr tokenResponse
	q := url.Values{"grant_type": {"password"}}
	if err := g.do(ctx, http.MethodPost, "/token", q, "", credentialsRequest{Email: email, Password: password}, &tr); err != nil {
		return nil, err
	}
	return tr.toAuthResponse(g.nowFunc()), nil
}

// SignUp registers a user. With email confirmation enabled the provider
// answers with the bare user object and no session.
func (g *GoTrue) SignUp(ctx context.Context, params SignUpParams) (*AuthResponse, error) {
	var q url.Values
	if params.EmailRedirectTo != "" {
		q = url.Values{"redirect_to": {params.EmailRedirectTo}}
	}
	var raw json.RawMessage
	body := signUpRequest{Email: params.Email, Password: params.Password, Data: params.Data}
	if err := g.do(ctx, http.MethodPost, "/signup", q, "", body, &raw); err != nil {
		return nil, err
	}

	var tr tokenResponse
	if err := json.Unmarshal(raw, &tr); err != nil {
		return nil, errors.Wrap(err, "decoding sign up response")
	}
	if tr.AccessToken != "" || tr.User != nil {
		return tr.toAuthResponse(g.nowFunc()), nil
	}

	var ur userResponse
	if err := json.Unmarshal(raw, &ur); err != nil {
		return nil, errors.Wrap(err, "decoding sign up user")
	}
	return &AuthResponse{User: ur.toUser()}, nil
}

func (g *GoTrue) SignOut(ctx context.Context, accessToken string) error {
	return g.do(ctx, http.MethodPost, "/logout", nil, accessToken, nil, nil)
}

func (g *GoTrue) RefreshSession(ctx context.Context, refreshToken string) (*AuthResponse, error) {
	if refreshToken == "" {
		return nil, errors.Wrap(apperrors.ErrSessionMissing, "refresh token is empty")
	}
	var tr tokenResponse
	q := url.Values{"grant_type": {"refresh_token"}}
	if err := g.do(ctx, http.MethodPost, "/token", q, "", refreshRequest{RefreshToken: refreshToken}, &tr); err != nil {
		return nil, err
	}
	return tr.toAuthResponse(g.nowFunc()), nil
}

func (g *GoTrue) GetUser(ctx context.Context, accessToken string) (*users.User, error) {
	if accessToken == "" {
		return nil, errors.Wrap(apperrors.ErrSessionMissing, "access token is empty")
	}
	var ur userResponse
	if err := g.do(ctx, http.MethodGet, "/user", nil, accessToken, nil, &ur); err != nil {
		return nil, err
	}
	u := ur.toUser()
	if u == nil {
		return nil, errors.Wrap(apperrors.ErrInvalidToken, "provider returned no user")
	}
	return u, nil
}

func (g *GoTrue) UpdateUser(ctx context.Context, accessToken string, params UpdateUserParams) (*users.User, error) {
	if accessToken == "" {
		return nil, errors.Wrap(apperrors.ErrSessionMissing, "access token is empty")
	}
	var ur userResponse
	body := updateUserRequest{Password: params.Password, Data: params.Data}
	if err := g.do(ctx, http.MethodPut, "/user", nil, accessToken, body, &ur); err != nil {
		return nil, err
	}
	return ur.toUser(), nil
}

func (g *GoTrue) ExchangeCodeForSession(ctx context.Context, code, codeVerifier string) (*AuthResponse, error) {
	var tr tokenResponse
	q := url.Values{"grant_type": {"pkce"}}
	if err := g.do(ctx, http.MethodPost, "/token", q, "", pkceRequest{AuthCode: code, CodeVerifier: codeVerifier}, &tr); err != nil {
		return nil, err
	}
	return tr.toAuthResponse(g.nowFunc()), nil
}

func (g *GoTrue) ResetPasswordForEmail(ctx context.Context, email, redirectTo string) error {
	var q url.Values
	if redirectTo != "" {
		q = url.Values{"redirect_to": {redirectTo}}
	}
	return g.do(ctx, http.MethodPost, "/recover", q, "", recoverRequest{Email: email}, nil)
}

func (g *GoTrue) VerifyOTP(ctx context.Context, tokenHash string, otpType OTPType) (*AuthResponse, error) {
	if tokenHash == "" {
		return nil, errors.New("token hash is required")
	}
	var tr tokenResponse
	if err := g.do(ctx, http.MethodPost, "/verify", nil, "", verifyRequest{Type: otpType, TokenHash: tokenHash}, &tr); err != nil {
		return nil, err
	}
	return tr.toAuthResponse(g.nowFunc()), nil
}

func (g *GoTrue) AuthorizeURL(params OAuthParams) (string, error) {
	if params.Provider == "" {
		return "", errors.New("oauth provider is required")
	}
	q := url.Values{"provider": {params.Provider}}
	if params.RedirectTo != "" {
		q.Set("redirect_to", params.RedirectTo)
	}
	if params.Scopes != "" {
		q.Set("scopes", params.Scopes)
	}
	if params.CodeChallenge != "" {
		q.Set("code_challenge", params.CodeChallenge)
		q.Set("code_challenge_method", "s256")
	}
	return g.baseURL + "/authorize?" + q.Encode(), nil
}

// do performs one provider call. Non 2xx responses are returned as *Error;
// anything else failing is a transport error.
func (g *GoTrue) do(ctx context.Context, method, path string, query url.Values, bearer string, in, out any) error {
	endpoint := g.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return errors.Wrapf(err, "encoding %s %s request", method, path)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return errors.Wrapf(err, "building %s %s request", method, path)
	}
	req.Header.Set(headerAPIKey, g.apiKey)
	req.Header.Set("Accept", contentTypeJSON)
	if in != nil {
		req.Header.Set("Content-Type", contentTypeJSON)
	}
	if bearer == "" {
		bearer = g.apiKey
	}
	req.Header.Set("Authorization", "Bearer "+bearer)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s %s", method, path)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return errors.Wrapf(err, "reading %s %s response", method, path)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var er errorResponse
		// A body that is not JSON still produces an Error from the status.
		_ = json.Unmarshal(data, &er)
		return er.toError(resp.StatusCode)
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return errors.Wrapf(err, "decoding %s %s response", method, path)
	}
	return nil
}
