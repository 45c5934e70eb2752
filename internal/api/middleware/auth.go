// auth.go — JWT middleware аутентификации Document Registry.
// Проверяет подпись RS256 через JWKS провайдера идентификации и помещает
// в контекст субъекта (sub) и его роль для шлюза авторизации.
// Роль берётся из claim "role", при его отсутствии — первая из "roles".
package middleware

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/MicahParks/jwkset"
	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"

	apierrors "github.com/bigkaa/goartstore/document-registry/internal/api/errors"
	"github.com/bigkaa/goartstore/document-registry/internal/domain/model"
)

// contextKey — тип для ключей контекста (избегаем коллизий).
type contextKey string

// ContextKeyClaims — извлечённые claims в контексте запроса.
const ContextKeyClaims contextKey = "jwt_claims"

// ScopeRegistryAdmin — scope для операций обслуживания.
const ScopeRegistryAdmin = "registry:admin"

// AuthClaims — claims субъекта, прошедшего аутентификацию.
type AuthClaims struct {
	Subject           string
	PreferredUsername string
	// Role — роль субъекта для шлюза авторизации
	Role   string
	Scopes []string
}

// Actor возвращает субъекта операции реестра.
func (c *AuthClaims) Actor() model.Actor {
	return model.Actor{ID: c.Subject, Role: c.Role}
}

// HasScope проверяет наличие указанного scope.
func (c *AuthClaims) HasScope(scope string) bool {
	return slices.Contains(c.Scopes, scope)
}

// tokenClaims — raw claims JWT для парсинга.
type tokenClaims struct {
	jwt.RegisteredClaims
	PreferredUsername string   `json:"preferred_username"`
	Role              string   `json:"role,omitempty"`
	Roles             []string `json:"roles,omitempty"`
	// Scope — scopes через пробел
	Scope string `json:"scope,omitempty"`
}

// JWTAuth — middleware для JWT-аутентификации через JWKS.
type JWTAuth struct {
	jwks      keyfunc.Keyfunc
	logger    *slog.Logger
	jwtLeeway time.Duration
}

// JWKSOptions — параметры HTTP-клиента JWKS.
type JWKSOptions struct {
	URL string
	// CACertPath — опциональный CA-сертификат для TLS
	CACertPath      string
	SkipVerify      bool
	ClientTimeout   time.Duration
	RefreshInterval time.Duration
	Leeway          time.Duration
}

// NewJWTAuth создаёт JWT middleware с JWKS из провайдера идентификации.
func NewJWTAuth(opts JWKSOptions, logger *slog.Logger) (*JWTAuth, error) {
	httpClient, err := jwksHTTPClient(opts)
	if err != nil {
		return nil, fmt.Errorf("загрузка CA-сертификата %s: %w", opts.CACertPath, err)
	}

	// NoErrorReturnFirstHTTPReq — стартуем даже если провайдер ещё недоступен
	storage, err := jwkset.NewStorageFromHTTP(opts.URL, jwkset.HTTPClientStorageOptions{
		Client:                    httpClient,
		NoErrorReturnFirstHTTPReq: true,
		RefreshInterval:           opts.RefreshInterval,
		RefreshErrorHandler: func(_ context.Context, err error) {
			logger.Error("Ошибка обновления JWKS",
				slog.String("error", err.Error()),
				slog.String("url", opts.URL),
			)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("создание JWKS storage: %w", err)
	}

	k, err := keyfunc.New(keyfunc.Options{Storage: storage})
	if err != nil {
		return nil, fmt.Errorf("создание keyfunc: %w", err)
	}

	return &JWTAuth{
		jwks:      k,
		logger:    logger.With(slog.String("component", "jwt_auth")),
		jwtLeeway: opts.Leeway,
	}, nil
}

// jwksHTTPClient создаёт HTTP-клиент JWKS с кастомным CA или стандартный.
func jwksHTTPClient(opts JWKSOptions) (*http.Client, error) {
	tlsConfig := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: opts.SkipVerify, //nolint:gosec // управляется DR_TLS_SKIP_VERIFY
	}
	if opts.CACertPath != "" {
		caCert, err := os.ReadFile(opts.CACertPath)
		if err != nil {
			return nil, err
		}
		pool, err := x509.SystemCertPool()
		if err != nil {
			pool = x509.NewCertPool()
		}
		pool.AppendCertsFromPEM(caCert)
		tlsConfig.RootCAs = pool
	}

	return &http.Client{
		Timeout:   opts.ClientTimeout,
		Transport: &http.Transport{TLSClientConfig: tlsConfig},
	}, nil
}

// NewJWTAuthWithKeyfunc создаёт JWT middleware с предоставленной keyfunc.
// Используется в тестах для подстановки mock JWKS.
func NewJWTAuthWithKeyfunc(kf keyfunc.Keyfunc, logger *slog.Logger) *JWTAuth {
	return &JWTAuth{
		jwks:   kf,
		logger: logger.With(slog.String("component", "jwt_auth")),
	}
}

// Middleware возвращает HTTP middleware для JWT-аутентификации.
func (j *JWTAuth) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				apierrors.Unauthorized(w, "Отсутствует заголовок Authorization")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
				apierrors.Unauthorized(w, "Неверный формат Authorization: ожидается Bearer <token>")
				return
			}

			raw := &tokenClaims{}
			token, err := jwt.ParseWithClaims(parts[1], raw, j.jwks.KeyfuncCtx(r.Context()),
				jwt.WithValidMethods([]string{"RS256"}),
				jwt.WithExpirationRequired(),
				jwt.WithLeeway(j.jwtLeeway),
			)
			if err != nil || !token.Valid {
				j.logger.Debug("JWT валидация не пройдена",
					slog.Any("error", err),
					slog.String("remote_addr", r.RemoteAddr),
				)
				apierrors.Unauthorized(w, "Невалидный или просроченный токен")
				return
			}

			if raw.Subject == "" {
				apierrors.Unauthorized(w, "Отсутствует sub в токене")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), buildAuthClaims(raw))))
		})
	}
}

// buildAuthClaims формирует AuthClaims из raw claims.
func buildAuthClaims(raw *tokenClaims) *AuthClaims {
	claims := &AuthClaims{
		Subject:           raw.Subject,
		PreferredUsername: raw.PreferredUsername,
		Role:              strings.TrimSpace(raw.Role),
		Scopes:            strings.Fields(raw.Scope),
	}
	if claims.Role == "" && len(raw.Roles) > 0 {
		claims.Role = raw.Roles[0]
	}
	return claims
}

// RequireScope возвращает middleware, требующий указанный scope.
// Должен использоваться ПОСЛЕ JWTAuth.Middleware().
func RequireScope(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := ClaimsFromContext(r.Context())
			if claims == nil {
				apierrors.Unauthorized(w, "Отсутствуют claims в контексте")
				return
			}
			if !claims.HasScope(scope) {
				apierrors.Forbidden(w, "Недостаточно прав: требуется scope "+scope)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// --- Context helpers ---

// ClaimsFromContext извлекает AuthClaims из контекста запроса.
// Возвращает nil, если claims не найдены.
func ClaimsFromContext(ctx context.Context) *AuthClaims {
	claims, _ := ctx.Value(ContextKeyClaims).(*AuthClaims)
	return claims
}

// ActorFromContext возвращает субъекта запроса.
// Без claims — пустой Actor, которому шлюз авторизации откажет.
func ActorFromContext(ctx context.Context) model.Actor {
	claims := ClaimsFromContext(ctx)
	if claims == nil {
		return model.Actor{}
	}
	return claims.Actor()
}

// WithClaims помещает claims в контекст и передаёт субъекта журналу запроса.
func WithClaims(ctx context.Context, claims *AuthClaims) context.Context {
	noteActor(ctx, claims)
	return context.WithValue(ctx, ContextKeyClaims, claims)
}
