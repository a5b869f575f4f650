// Package providerfake is an in-memory identity provider. It mints real HS256
// access tokens and single-use refresh tokens so the whole session layer can
// run against it, in tests and in the server's memory mode.
package providerfake

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jrsteele09/go-session-gate/provider"
	"github.com/jrsteele09/go-session-gate/sessions"
	"github.com/jrsteele09/go-session-gate/users"
	"github.com/pkg/errors"
	"golang.org/x/oauth2"
)

// Operation names a provider call for failure injection and call counting.
type Operation string

const (
	OpSignIn     Operation = "sign_in"
	OpSignUp     Operation = "sign_up"
	OpSignOut    Operation = "sign_out"
	OpRefresh    Operation = "refresh"
	OpGetUser    Operation = "get_user"
	OpUpdateUser Operation = "update_user"
	OpExchange   Operation = "exchange"
	OpRecover    Operation = "recover"
	OpVerifyOTP  Operation = "verify_otp"
)

const (
	DefaultSecret     = "providerfake-jwt-secret-with-at-least-32-chars"
	DefaultProjectURL = "http://localhost:54321"

	minPasswordLength = 6
)

var _ provider.Provider = (*Provider)(nil)

type account struct {
	user         *users.User
	passwordHash string
	confirmed    bool
}

type otp struct {
	userID  string
	otpType provider.OTPType
}

type authCode struct {
	userID        string
	codeChallenge string
}

// RecoveryRequest is a password reset the fake pretended to email.
// TokenHash is empty for unknown addresses.
type RecoveryRequest struct {
	Email      string
	RedirectTo string
	TokenHash  string
}

type Provider struct {
	accounts      map[string]*account // user ID to account
	emailIDs      map[string]string   // email to user ID
	sessionUsers  map[string]string   // session ID to user ID
	refreshTokens map[string]string   // refresh token to session ID
	codes         map[string]*authCode
	otps          map[string]*otp // token hash to pending email link
	recoveries    []RecoveryRequest

	failures map[Operation]error
	hooks    map[Operation]func(ctx context.Context)
	calls    map[Operation]int
	lock     sync.RWMutex

	secret            []byte
	projectURL        string
	accessTokenExpiry time.Duration
	confirmEmail      bool
	nowFunc           func() time.Time
}

type Option func(*Provider)

func WithSecret(secret string) Option {
	return func(p *Provider) {
		p.secret = []byte(secret)
	}
}

// WithProjectURL sets the URL the fake pretends to be hosted at. It is used
// as the token issuer and as the base of AuthorizeURL.
func WithProjectURL(u string) Option {
	return func(p *Provider) {
		p.projectURL = strings.TrimRight(u, "/")
	}
}

func WithAccessTokenExpiry(d time.Duration) Option {
	return func(p *Provider) {
		p.accessTokenExpiry = d
	}
}

func WithNowFunc(now func() time.Time) Option {
	return func(p *Provider) {
		p.nowFunc = now
	}
}

// WithEmailConfirmation makes SignUp return the new user without a session,
// as the hosted provider does when confirmation emails are enabled.
func WithEmailConfirmation(enabled bool) Option {
	return func(p *Provider) {
		p.confirmEmail = enabled
	}
}

func New(options ...Option) *Provider {
	p := &Provider{
		accounts:      make(map[string]*account),
		emailIDs:      make(map[string]string),
		sessionUsers:  make(map[string]string),
		refreshTokens: make(map[string]string),
		codes:         make(map[string]*authCode),
		otps:          make(map[string]*otp),
		failures:      make(map[Operation]error),
		hooks:         make(map[Operation]func(ctx context.Context)),
		calls:         make(map[Operation]int),
		secret:        []byte(DefaultSecret),
		projectURL:    DefaultProjectURL,
	}
	for _, opt := range options {
		opt(p)
	}
	if p.accessTokenExpiry == 0 {
		p.accessTokenExpiry = time.Hour
	}
	if p.nowFunc == nil {
		p.nowFunc = time.Now
	}
	return p
}

// Secret is the HS256 key access tokens are signed with.
func (p *Provider) Secret() string {
	return string(p.secret)
}

// Verifier returns a local verifier that accepts this fake's access tokens.
func (p *Provider) Verifier() provider.TokenVerifier {
	return provider.NewJWTVerifier(string(p.secret), provider.WithVerifierClock(p.nowFunc))
}

// AddUser seeds a confirmed account.
func (p *Provider) AddUser(email, password string, roles ...users.RoleType) (*users.User, error) {
	hash, err := users.HashPassword(password)
	if err != nil {
		return nil, errors.Wrap(err, "[providerfake AddUser] HashPassword")
	}

	p.lock.Lock()
	defer p.lock.Unlock()

	if _, exists := p.emailIDs[email]; exists {
		return nil, errUserExists()
	}
	appMetadata := map[string]any{"provider": "email"}
	if len(roles) > 0 {
		names := make([]any, 0, len(roles))
		for _, r := range roles {
			names = append(names, string(r))
		}
		appMetadata["roles"] = names
	}
	u := &users.User{
		ID:          uuid.New().String(),
		Email:       email,
		Roles:       users.RolesFromAppMetadata(appMetadata),
		AppMetadata: appMetadata,
		Metadata:    map[string]any{},
		CreatedAt:   p.nowFunc(),
	}
	p.accounts[u.ID] = &account{user: u, passwordHash: hash, confirmed: true}
	p.emailIDs[email] = u.ID
	return cloneUser(u), nil
}

// SetFailure makes every call of op fail with err until cleared with a nil err.
func (p *Provider) SetFailure(op Operation, err error) {
	p.lock.Lock()
	defer p.lock.Unlock()
	if err == nil {
		delete(p.failures, op)
		return
	}
	p.failures[op] = err
}

// SetHook runs fn at the start of every call of op, outside the fake's lock.
// Tests use it to hold a call open.
func (p *Provider) SetHook(op Operation, fn func(ctx context.Context)) {
	p.lock.Lock()
	defer p.lock.Unlock()
	if fn == nil {
		delete(p.hooks, op)
		return
	}
	p.hooks[op] = fn
}

// Calls reports how many times op was invoked, failed calls included.
func (p *Provider) Calls(op Operation) int {
	p.lock.RLock()
	defer p.lock.RUnlock()
	return p.calls[op]
}

func (p *Provider) Recoveries() []RecoveryRequest {
	p.lock.RLock()
	defer p.lock.RUnlock()
	return append([]RecoveryRequest(nil), p.recoveries...)
}

// PendingOTP returns the token hash of the newest unused email link of
// otpType sent to email.
func (p *Provider) PendingOTP(email string, otpType provider.OTPType) (string, bool) {
	p.lock.RLock()
	defer p.lock.RUnlock()
	userID, ok := p.emailIDs[email]
	if !ok {
		return "", false
	}
	for hash, o := range p.otps {
		if o.userID == userID && o.otpType == otpType {
			return hash, true
		}
	}
	return "", false
}

// IssueCode plays the provider side of an OAuth redirect: the user with email
// signed in upstream and is sent back with a code bound to codeChallenge.
func (p *Provider) IssueCode(email, codeChallenge string) (string, error) {
	p.lock.Lock()
	defer p.lock.Unlock()
	userID, ok := p.emailIDs[email]
	if !ok {
		return "", &provider.Error{Status: http.StatusNotFound, Code: "user_not_found", Message: "User not found"}
	}
	code := uuid.New().String()
	p.codes[code] = &authCode{userID: userID, codeChallenge: codeChallenge}
	return code, nil
}

// begin counts the call, runs any hook and returns the injected failure.
func (p *Provider) begin(ctx context.Context, op Operation) error {
	p.lock.Lock()
	p.calls[op]++
	hook := p.hooks[op]
	p.lock.Unlock()

	if hook != nil {
		hook(ctx)
	}
	if err := ctx.Err(); err != nil {
		return errors.Wrapf(err, "[providerfake %s]", op)
	}

	p.lock.RLock()
	defer p.lock.RUnlock()
	return p.failures[op]
}

func (p *Provider) SignInWithPassword(ctx context.Context, email, password string) (*provider.AuthResponse, error) {
	if err := p.begin(ctx, OpSignIn); err != nil {
		return nil, err
	}

	p.lock.Lock()
	defer p.lock.Unlock()

	acc := p.accountByEmail(email)
	if acc == nil || !users.CheckPasswordHash(password, acc.passwordHash) {
		return nil, &provider.Error{Status: http.StatusBadRequest, Code: "invalid_credentials", Message: "Invalid login credentials"}
	}
	if !acc.confirmed {
		return nil, &provider.Error{Status: http.StatusBadRequest, Code: "email_not_confirmed", Message: "Email not confirmed"}
	}
	acc.user.LastSignInAt = p.nowFunc()
	return p.newSession(acc.user, uuid.New().String())
}

func (p *Provider) SignUp(ctx context.Context, params provider.SignUpParams) (*provider.AuthResponse, error) {
	if err := p.begin(ctx, OpSignUp); err != nil {
		return nil, err
	}
	if !strings.Contains(params.Email, "@") {
		return nil, &provider.Error{Status: http.StatusBadRequest, Code: "validation_failed", Message: "Unable to validate email address: invalid format"}
	}
	if len(params.Password) < minPasswordLength {
		return nil, errWeakPassword()
	}

	hash, err := users.HashPassword(params.Password)
	if err != nil {
		return nil, errors.Wrap(err, "[providerfake SignUp] HashPassword")
	}

	p.lock.Lock()
	defer p.lock.Unlock()

	if _, exists := p.emailIDs[params.Email]; exists {
		return nil, errUserExists()
	}
	metadata := map[string]any{}
	for k, v := range params.Data {
		metadata[k] = v
	}
	u := &users.User{
		ID:          uuid.New().String(),
		Email:       params.Email,
		AppMetadata: map[string]any{"provider": "email"},
		Metadata:    metadata,
		CreatedAt:   p.nowFunc(),
	}
	p.accounts[u.ID] = &account{user: u, passwordHash: hash, confirmed: !p.confirmEmail}
	p.emailIDs[u.Email] = u.ID

	if p.confirmEmail {
		p.otps[newTokenHash()] = &otp{userID: u.ID, otpType: provider.OTPSignUp}
		return &provider.AuthResponse{User: cloneUser(u)}, nil
	}
	u.LastSignInAt = p.nowFunc()
	return p.newSession(u, uuid.New().String())
}

// SignOut ends every session of the token's user, like the provider's global scope.
func (p *Provider) SignOut(ctx context.Context, accessToken string) error {
	if err := p.begin(ctx, OpSignOut); err != nil {
		return err
	}

	p.lock.Lock()
	defer p.lock.Unlock()

	claims, err := p.parseAccessToken(accessToken)
	if err != nil {
		return err
	}
	for sessionID, userID := range p.sessionUsers {
		if userID == claims.Subject {
			delete(p.sessionUsers, sessionID)
		}
	}
	for token, sessionID := range p.refreshTokens {
		if _, live := p.sessionUsers[sessionID]; !live {
			delete(p.refreshTokens, token)
		}
	}
	return nil
}

// RefreshSession consumes refreshToken and issues a new pair for the same session.
func (p *Provider) RefreshSession(ctx context.Context, refreshToken string) (*provider.AuthResponse, error) {
	if err := p.begin(ctx, OpRefresh); err != nil {
		return nil, err
	}

	p.lock.Lock()
	defer p.lock.Unlock()

	sessionID, ok := p.refreshTokens[refreshToken]
	if !ok {
		return nil, &provider.Error{Status: http.StatusBadRequest, Code: "refresh_token_not_found", Message: "Invalid Refresh Token: Refresh Token Not Found"}
	}
	delete(p.refreshTokens, refreshToken)

	userID, ok := p.sessionUsers[sessionID]
	if !ok {
		return nil, &provider.Error{Status: http.StatusBadRequest, Code: "session_not_found", Message: "Invalid Refresh Token: Session Expired"}
	}
	acc, ok := p.accounts[userID]
	if !ok {
		return nil, &provider.Error{Status: http.StatusBadRequest, Code: "user_not_found", Message: "User not found"}
	}
	return p.newSession(acc.user, sessionID)
}

func (p *Provider) GetUser(ctx context.Context, accessToken string) (*users.User, error) {
	if err := p.begin(ctx, OpGetUser); err != nil {
		return nil, err
	}

	p.lock.RLock()
	defer p.lock.RUnlock()

	claims, err := p.parseAccessToken(accessToken)
	if err != nil {
		return nil, err
	}
	acc, ok := p.accounts[claims.Subject]
	if !ok {
		return nil, &provider.Error{Status: http.StatusNotFound, Code: "user_not_found", Message: "User from sub claim in JWT does not exist"}
	}
	return cloneUser(acc.user), nil
}

func (p *Provider) UpdateUser(ctx context.Context, accessToken string, params provider.UpdateUserParams) (*users.User, error) {
	if err := p.begin(ctx, OpUpdateUser); err != nil {
		return nil, err
	}
	var hash string
	if params.Password != "" {
		if len(params.Password) < minPasswordLength {
			return nil, errWeakPassword()
		}
		var err error
		if hash, err = users.HashPassword(params.Password); err != nil {
			return nil, errors.Wrap(err, "[providerfake UpdateUser] HashPassword")
		}
	}

	p.lock.Lock()
	defer p.lock.Unlock()

	claims, err := p.parseAccessToken(accessToken)
	if err != nil {
		return nil, err
	}
	acc, ok := p.accounts[claims.Subject]
	if !ok {
		return nil, &provider.Error{Status: http.StatusNotFound, Code: "user_not_found", Message: "User not found"}
	}
	if hash != "" {
		if users.CheckPasswordHash(params.Password, acc.passwordHash) {
			return nil, &provider.Error{Status: http.StatusUnprocessableEntity, Code: "same_password", Message: "New password should be different from the old password."}
		}
		acc.passwordHash = hash
	}
	for k, v := range params.Data {
		acc.user.Metadata[k] = v
	}
	return cloneUser(acc.user), nil
}

func (p *Provider) ExchangeCodeForSession(ctx context.Context, code, codeVerifier string) (*provider.AuthResponse, error) {
	if err := p.begin(ctx, OpExchange); err != nil {
		return nil, err
	}

	p.lock.Lock()
	defer p.lock.Unlock()

	pending, ok := p.codes[code]
	if !ok {
		return nil, &provider.Error{Status: http.StatusNotFound, Code: "flow_state_not_found", Message: "invalid flow state, no valid flow state found"}
	}
	delete(p.codes, code)

	if pending.codeChallenge != "" && oauth2.S256ChallengeFromVerifier(codeVerifier) != pending.codeChallenge {
		return nil, &provider.Error{Status: http.StatusBadRequest, Code: "bad_code_verifier", Message: "code challenge does not match previously saved code verifier"}
	}
	acc, ok := p.accounts[pending.userID]
	if !ok {
		return nil, &provider.Error{Status: http.StatusNotFound, Code: "user_not_found", Message: "User not found"}
	}
	acc.user.LastSignInAt = p.nowFunc()
	return p.newSession(acc.user, uuid.New().String())
}

// ResetPasswordForEmail records the request. Unknown emails succeed too so
// callers cannot probe for accounts.
func (p *Provider) ResetPasswordForEmail(ctx context.Context, email, redirectTo string) error {
	if err := p.begin(ctx, OpRecover); err != nil {
		return err
	}

	p.lock.Lock()
	defer p.lock.Unlock()
	req := RecoveryRequest{Email: email, RedirectTo: redirectTo}
	if userID, ok := p.emailIDs[email]; ok {
		req.TokenHash = newTokenHash()
		p.otps[req.TokenHash] = &otp{userID: userID, otpType: provider.OTPRecovery}
	}
	p.recoveries = append(p.recoveries, req)
	return nil
}

// VerifyOTP redeems an email link once. Sign up links also confirm the account.
func (p *Provider) VerifyOTP(ctx context.Context, tokenHash string, otpType provider.OTPType) (*provider.AuthResponse, error) {
	if err := p.begin(ctx, OpVerifyOTP); err != nil {
		return nil, err
	}

	p.lock.Lock()
	defer p.lock.Unlock()

	pending, ok := p.otps[tokenHash]
	if !ok || !sameOTPType(pending.otpType, otpType) {
		return nil, &provider.Error{Status: http.StatusForbidden, Code: "otp_expired", Message: "Email link is invalid or has expired"}
	}
	delete(p.otps, tokenHash)

	acc, ok := p.accounts[pending.userID]
	if !ok {
		return nil, &provider.Error{Status: http.StatusNotFound, Code: "user_not_found", Message: "User not found"}
	}
	acc.confirmed = true
	acc.user.LastSignInAt = p.nowFunc()
	return p.newSession(acc.user, uuid.New().String())
}

func (p *Provider) AuthorizeURL(params provider.OAuthParams) (string, error) {
	if params.Provider == "" {
		return "", errors.New("[providerfake AuthorizeURL] oauth provider is required")
	}
	q := url.Values{"provider": {params.Provider}}
	if params.RedirectTo != "" {
		q.Set("redirect_to", params.RedirectTo)
	}
	if params.CodeChallenge != "" {
		q.Set("code_challenge", params.CodeChallenge)
		q.Set("code_challenge_method", "s256")
	}
	return p.projectURL + "/auth/v1/authorize?" + q.Encode(), nil
}

// accessTokenClaims mirror what the hosted provider signs.
type accessTokenClaims struct {
	jwt.RegisteredClaims
	Email        string         `json:"email"`
	Role         string         `json:"role"`
	SessionID    string         `json:"session_id"`
	AppMetadata  map[string]any `json:"app_metadata"`
	UserMetadata map[string]any `json:"user_metadata"`
}

// newSession mints a pair for sessionID. Callers hold the write lock.
func (p *Provider) newSession(u *users.User, sessionID string) (*provider.AuthResponse, error) {
	now := p.nowFunc()
	expiresAt := now.Add(p.accessTokenExpiry).Truncate(time.Second)

	claims := accessTokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    p.projectURL + "/auth/v1",
			Subject:   u.ID,
			Audience:  jwt.ClaimStrings{"authenticated"},
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.New().String(),
		},
		Email:        u.Email,
		Role:         "authenticated",
		SessionID:    sessionID,
		AppMetadata:  u.AppMetadata,
		UserMetadata: u.Metadata,
	}
	accessToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.secret)
	if err != nil {
		return nil, errors.Wrap(err, "[providerfake newSession] SignedString")
	}

	tokenBytes := make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		return nil, errors.Wrap(err, "[providerfake newSession] rand.Read")
	}
	refreshToken := hex.EncodeToString(tokenBytes)

	p.sessionUsers[sessionID] = u.ID
	p.refreshTokens[refreshToken] = sessionID

	user := cloneUser(u)
	return &provider.AuthResponse{
		Session: &sessions.Session{
			AccessToken:  accessToken,
			RefreshToken: refreshToken,
			TokenType:    "bearer",
			ExpiresAt:    expiresAt,
			User:         user,
		},
		User: user,
	}, nil
}

// parseAccessToken validates a token and its session. Callers hold the lock.
func (p *Provider) parseAccessToken(accessToken string) (*accessTokenClaims, error) {
	var claims accessTokenClaims
	_, err := jwt.ParseWithClaims(accessToken, &claims, func(t *jwt.Token) (interface{}, error) {
		return p.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(p.nowFunc),
	)
	if err != nil {
		return nil, &provider.Error{Status: http.StatusUnauthorized, Code: "bad_jwt", Message: "invalid JWT: unable to parse or verify signature, " + err.Error()}
	}
	if _, live := p.sessionUsers[claims.SessionID]; !live {
		return nil, &provider.Error{Status: http.StatusForbidden, Code: "session_not_found", Message: "Session from session_id claim in JWT does not exist"}
	}
	return &claims, nil
}

func (p *Provider) accountByEmail(email string) *account {
	id, ok := p.emailIDs[email]
	if !ok {
		return nil
	}
	return p.accounts[id]
}

// sameOTPType treats "email" as an alias of "signup", as the provider does.
func sameOTPType(issued, presented provider.OTPType) bool {
	if issued == presented {
		return true
	}
	return issued == provider.OTPSignUp && presented == provider.OTPEmail
}

func newTokenHash() string {
	b := make([]byte, 28)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

func cloneUser(u *users.User) *users.User {
	cp := *u
	cp.Roles = append([]users.RoleType(nil), u.Roles...)
	cp.AppMetadata = cloneMap(u.AppMetadata)
	cp.Metadata = cloneMap(u.Metadata)
	return &cp
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	cp := make(map[string]any, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return cp
}

func errUserExists() error {
	return &provider.Error{Status: http.StatusUnprocessableEntity, Code: "user_already_exists", Message: "User already registered"}
}

func errWeakPassword() error {
	return &provider.Error{Status: http.StatusUnprocessableEntity, Code: "weak_password", Message: "Password should be at least 6 characters."}
}
