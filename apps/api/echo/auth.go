package echoapi

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/attendly/core"
	"github.com/trezcool/attendly/core/school"
	"github.com/trezcool/attendly/core/user"
	cachesvc "github.com/trezcool/attendly/services/cache"
)

const (
	contextClaimsKey = "claims"
	contextUserKey   = "user"
	bearerPrefix     = "Bearer "
)

// Claims represents the authorization claims transmitted via a JWT.
type Claims struct {
	jwt.RegisteredClaims
	OrigIssuedAt int64    `json:"oriat,omitempty"`
	SchoolID     string   `json:"school_id"`
	Username     string   `json:"username,omitempty"`
	Email        string   `json:"email,omitempty"`
	Roles        []string `json:"roles,omitempty"`
	ActiveRole   string   `json:"active_role,omitempty"`
}

func (c Claims) HasAnyRole(roles ...string) bool {
	if len(roles) == 0 {
		return true
	}
	for _, role := range roles {
		if core.ContainsString(c.Roles, role) {
			return true
		}
	}
	return false
}

// Auth issues & verifies the API tokens.
type Auth struct {
	appName      string
	signingKey   []byte
	expiration   time.Duration
	refreshDelta time.Duration
	denyList     *cachesvc.Client
}

func NewAuth(conf *core.Config, denyList *cachesvc.Client) *Auth {
	return &Auth{
		appName:      conf.AppName,
		signingKey:   []byte(conf.SecretKey),
		expiration:   conf.Server.JWTExpirationDelta,
		refreshDelta: conf.Server.JWTRefreshExpirationDelta,
		denyList:     denyList,
	}
}

// UserClaims builds the claims of usr logged in as activeRole; origIat carries over the refresh window.
func (a *Auth) UserClaims(usr user.User, activeRole string, origIat ...int64) *Claims {
	now := time.Now()
	oriat := now.Unix()
	if len(origIat) > 0 {
		oriat = origIat[0]
	}
	if activeRole == "" {
		activeRole = usr.PrimaryRole()
	}
	return &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    a.appName,
			Subject:   usr.ID,
			ExpiresAt: jwt.NewNumericDate(now.Add(a.expiration)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		OrigIssuedAt: oriat,
		SchoolID:     usr.SchoolID,
		Username:     usr.Username,
		Email:        usr.Email,
		Roles:        usr.Roles,
		ActiveRole:   activeRole,
	}
}

// GenerateToken generates a signed JWT token string representing the user Claims.
func (a *Auth) GenerateToken(claims *Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	ss, err := token.SignedString(a.signingKey)
	if err != nil {
		return "", errors.Wrap(err, "signing token")
	}
	return ss, nil
}

func (a *Auth) parse(raw string) (*Claims, error) {
	claims := new(Claims)
	_, err := jwt.ParseWithClaims(raw, claims,
		func(*jwt.Token) (interface{}, error) { return a.signingKey, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(a.appName),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, err
	}
	return claims, nil
}

// Middleware authenticates the bearer token & stores its claims in the context.
func (a *Auth) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			header := ctx.Request().Header.Get(echo.HeaderAuthorization)
			if !strings.HasPrefix(header, bearerPrefix) || len(header) == len(bearerPrefix) {
				return errMissingToken
			}
			claims, err := a.parse(strings.TrimPrefix(header, bearerPrefix))
			if err != nil {
				return errInvalidToken.SetInternal(err)
			}
			denied, err := a.denyList.IsTokenDenied(ctx.Request().Context(), claims.ID)
			if err != nil {
				return errors.Wrap(err, "checking deny-list")
			}
			if denied {
				return errInvalidToken
			}
			ctx.Set(contextClaimsKey, claims)
			return next(ctx)
		}
	}
}

// Revoke denies the token until it expires.
func (a *Auth) Revoke(ctx echo.Context, claims *Claims) error {
	exp := time.Now().Add(a.expiration)
	if claims.ExpiresAt != nil {
		exp = claims.ExpiresAt.Time
	}
	return a.denyList.DenyToken(ctx.Request().Context(), claims.ID, exp)
}

func getContextClaims(ctx echo.Context) (*Claims, error) {
	if claims, ok := ctx.Get(contextClaimsKey).(*Claims); ok {
		return claims, nil
	}
	return nil, errUnauthorized
}

// getContextUser loads the authenticated user once per request; a user of another school
// (or one deleted since the token was issued) is unauthorized.
func getContextUser(ctx echo.Context, svc user.Service) (user.User, error) {
	if usr, ok := ctx.Get(contextUserKey).(user.User); ok {
		return usr, nil
	}
	claims, err := getContextClaims(ctx)
	if err != nil {
		return user.User{}, err
	}
	usr, err := svc.GetByID(ctx.Request().Context(), claims.Subject)
	if err != nil {
		if core.IsNotFound(err) {
			return user.User{}, errUnauthorized
		}
		return user.User{}, errors.Wrap(err, "finding user by ID")
	}
	if usr.SchoolID != claims.SchoolID {
		return user.User{}, errUnauthorized
	}
	ctx.Set(contextUserKey, usr)
	return usr, nil
}

// authenticate checks the credentials of a user of sch logging in as role.
func authenticate(ctx echo.Context, sch school.School, login, pwd, role string, svc user.Service) (user.User, error) {
	usr, err := svc.GetByUsernameOrEmail(ctx.Request().Context(), sch.ID, login)
	if err != nil {
		if core.IsNotFound(err) {
			return user.User{}, errAuthenticationFailed
		}
		return user.User{}, errors.Wrap(err, "finding user by username or email")
	}
	if err = usr.CheckPassword(pwd); err != nil {
		return user.User{}, errAuthenticationFailed
	}
	if !usr.IsActive || !sch.IsActive {
		return user.User{}, errAccountDeactivated
	}
	if !usr.HasRole(role) {
		return user.User{}, errRoleNotAssigned
	}
	usr, err = svc.SetLastLogin(ctx.Request().Context(), usr)
	if err != nil {
		return user.User{}, errors.Wrap(err, "setting lastLogin")
	}
	return usr, nil
}

func (a *Auth) refreshToken(ctx echo.Context, svc user.Service) (string, error) {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return "", err
	}
	usr, err := getContextUser(ctx, svc)
	if err != nil {
		return "", err
	}

	// check if user is still active
	if !usr.IsActive {
		return "", errAccountDeactivated
	}

	// check if refresh has not expired
	expTime := time.Unix(claims.OrigIssuedAt, 0).Add(a.refreshDelta)
	if time.Now().After(expTime) {
		return "", errRefreshExpired
	}

	role := claims.ActiveRole
	if !usr.HasRole(role) {
		role = usr.PrimaryRole()
	}
	token, err := a.GenerateToken(a.UserClaims(usr, role, claims.OrigIssuedAt))
	if err != nil {
		return "", err
	}
	if err := a.Revoke(ctx, claims); err != nil {
		return "", errors.Wrap(err, "revoking refreshed token")
	}
	return token, nil
}
