// auth.go — опциональная JWT-аутентификация (RS256 + JWKS).
// Включается, когда задан PV_JWKS_URL. sub из токена попадает в uploadedBy.
// Публичные endpoints (health, info, metrics) — без аутентификации:
// проверяются только операции, для которых сгенерированный wrapper
// положил в контекст generated.BearerAuthScopes.
package middleware

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
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

	apierrors "github.com/bigkaa/goartstore/pdfvault/internal/api/errors"
	"github.com/bigkaa/goartstore/pdfvault/internal/api/generated"
)

type contextKey string

const (
	// ContextKeySubject — sub токена в контексте запроса.
	ContextKeySubject contextKey = "jwt_subject"
	// ContextKeyScopes — scopes токена в контексте запроса.
	ContextKeyScopes contextKey = "jwt_scopes"
)

var (
	errNoHeader   = errors.New("отсутствует заголовок Authorization")
	errBadScheme  = errors.New("неверный формат Authorization: ожидается Bearer <token>")
	errEmptyToken = errors.New("пустой Bearer token")
	errNoSubject  = errors.New("отсутствует sub в токене")
)

// Claims — claims токена. Scopes принимаются в двух видах:
// "scope" (строка через пробел, OAuth2) и "scopes" (массив).
type Claims struct {
	jwt.RegisteredClaims
	ScopeString string   `json:"scope"`
	ScopeArray  []string `json:"scopes"`
}

// Scopes объединяет оба вида.
func (c *Claims) Scopes() []string {
	result := strings.Fields(c.ScopeString)
	return append(result, c.ScopeArray...)
}

// Principal — клиент, предъявивший валидный токен.
type Principal struct {
	Subject string
	Scopes  []string
}

// JWTAuth проверяет Bearer-токены по ключам JWKS.
type JWTAuth struct {
	jwks      keyfunc.Keyfunc
	jwtLeeway time.Duration
	logger    *slog.Logger
	// stop завершает фоновое обновление JWKS
	stop context.CancelFunc
}

// JWTAuthConfig — параметры JWKS-клиента и проверки токенов.
type JWTAuthConfig struct {
	JWKSURL string
	// CACertPath — дополнительный CA для JWKS endpoint (опционально)
	CACertPath      string
	ClientTimeout   time.Duration
	RefreshInterval time.Duration
	// JWTLeeway — допустимое расхождение часов для exp/nbf
	JWTLeeway time.Duration
}

// NewJWTAuth создаёт проверку токенов с ключами из JWKS endpoint.
// Первая загрузка ключей не блокирует старт: JWKS может подняться позже.
func NewJWTAuth(authCfg JWTAuthConfig, logger *slog.Logger) (*JWTAuth, error) {
	rootCAs, err := loadCAPool(authCfg.CACertPath)
	if err != nil {
		return nil, err
	}
	if rootCAs != nil {
		logger.Info("CA-сертификат JWKS добавлен в пул доверия",
			slog.String("ca_cert", authCfg.CACertPath),
		)
	}

	client := &http.Client{
		Timeout: authCfg.ClientTimeout,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				MinVersion: tls.VersionTLS12,
				RootCAs:    rootCAs,
			},
		},
	}

	refreshCtx, stop := context.WithCancel(context.Background())
	storage, err := jwkset.NewStorageFromHTTP(authCfg.JWKSURL, jwkset.HTTPClientStorageOptions{
		Client:                    client,
		Ctx:                       refreshCtx,
		NoErrorReturnFirstHTTPReq: true,
		RefreshInterval:           authCfg.RefreshInterval,
		RefreshErrorHandler: func(_ context.Context, err error) {
			logger.Error("Ошибка обновления JWKS",
				slog.String("url", authCfg.JWKSURL),
				slog.String("error", err.Error()),
			)
		},
	})
	if err != nil {
		stop()
		return nil, fmt.Errorf("создание JWKS storage: %w", err)
	}

	kf, err := keyfunc.New(keyfunc.Options{Storage: storage})
	if err != nil {
		stop()
		return nil, fmt.Errorf("создание keyfunc: %w", err)
	}

	auth := NewJWTAuthWithKeyfunc(kf, authCfg.JWTLeeway, logger)
	auth.stop = stop
	return auth, nil
}

// loadCAPool возвращает системный пул с добавленным CA или nil, если path пуст.
func loadCAPool(path string) (*x509.CertPool, error) {
	if path == "" {
		return nil, nil
	}
	pem, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("загрузка CA-сертификата %s: %w", path, err)
	}
	pool, err := x509.SystemCertPool()
	if err != nil {
		pool = x509.NewCertPool()
	}
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("в %s нет PEM-сертификатов", path)
	}
	return pool, nil
}

// NewJWTAuthWithKeyfunc создаёт проверку с готовой keyfunc (тесты, mock JWKS).
func NewJWTAuthWithKeyfunc(kf keyfunc.Keyfunc, jwtLeeway time.Duration, logger *slog.Logger) *JWTAuth {
	return &JWTAuth{
		jwks:      kf,
		jwtLeeway: jwtLeeway,
		logger:    logger.With(slog.String("component", "jwt_auth")),
		stop:      func() {},
	}
}

// bearerToken извлекает токен из заголовка Authorization.
func bearerToken(header string) (string, error) {
	if header == "" {
		return "", errNoHeader
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", errBadScheme
	}
	if token = strings.TrimSpace(token); token == "" {
		return "", errEmptyToken
	}
	return token, nil
}

// verify проверяет подпись RS256, exp (обязателен) и nbf.
func (j *JWTAuth) verify(ctx context.Context, raw string) (Principal, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, j.jwks.KeyfuncCtx(ctx),
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(j.jwtLeeway),
	)
	if err != nil {
		return Principal{}, err
	}
	if sub, _ := claims.GetSubject(); sub != "" {
		return Principal{Subject: sub, Scopes: claims.Scopes()}, nil
	}
	return Principal{}, errNoSubject
}

// Middleware требует валидный Bearer-токен и кладёт sub и scopes в контекст.
func (j *JWTAuth) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, err := bearerToken(r.Header.Get("Authorization"))
			if err != nil {
				AuthRejectedTotal.WithLabelValues("header").Inc()
				apierrors.Unauthorized(w, err.Error())
				return
			}

			principal, err := j.verify(r.Context(), raw)
			switch {
			case errors.Is(err, errNoSubject):
				AuthRejectedTotal.WithLabelValues("subject").Inc()
				apierrors.Unauthorized(w, "Отсутствует sub в токене")
				return
			case err != nil:
				j.logger.Debug("Токен отклонён",
					slog.String("remote_addr", r.RemoteAddr),
					slog.String("error", err.Error()),
				)
				AuthRejectedTotal.WithLabelValues("token").Inc()
				apierrors.Unauthorized(w, "Невалидный или просроченный токен")
				return
			}

			ctx := context.WithValue(r.Context(), ContextKeySubject, principal.Subject)
			ctx = context.WithValue(ctx, ContextKeyScopes, principal.Scopes)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Operations — middleware для сгенерированного wrapper'а. Операции без
// generated.BearerAuthScopes в контексте пропускаются без проверки,
// остальные требуют токен со всеми перечисленными scopes.
func (j *JWTAuth) Operations() func(http.Handler) http.Handler {
	authenticate := j.Middleware()
	return func(next http.Handler) http.Handler {
		secured := authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			required, _ := r.Context().Value(generated.BearerAuthScopes).([]string)
			granted := ScopesFromContext(r.Context())
			for _, scope := range required {
				if !slices.Contains(granted, scope) {
					AuthRejectedTotal.WithLabelValues("scope").Inc()
					apierrors.Forbidden(w, "Недостаточно прав: требуется scope "+scope)
					return
				}
			}
			next.ServeHTTP(w, r)
		}))
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := r.Context().Value(generated.BearerAuthScopes).([]string); !ok {
				next.ServeHTTP(w, r)
				return
			}
			secured.ServeHTTP(w, r)
		})
	}
}

// RequireScope — middleware с проверкой одного scope после Middleware().
// Нет scopes в контексте или нужного среди них — 403.
func RequireScope(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			scopes, ok := r.Context().Value(ContextKeyScopes).([]string)
			if !ok {
				apierrors.Forbidden(w, "Отсутствуют scopes в токене")
				return
			}
			if !slices.Contains(scopes, scope) {
				apierrors.Forbidden(w, "Недостаточно прав: требуется scope "+scope)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// SubjectFromContext возвращает sub токена или "".
func SubjectFromContext(ctx context.Context) string {
	subject, _ := ctx.Value(ContextKeySubject).(string)
	return subject
}

// ScopesFromContext возвращает scopes токена или nil.
func ScopesFromContext(ctx context.Context) []string {
	scopes, _ := ctx.Value(ContextKeyScopes).([]string)
	return scopes
}

// Close останавливает фоновое обновление JWKS.
func (j *JWTAuth) Close() {
	j.stop()
}
