// auth.go — JWT middleware для аутентификации портала документов.
// Извлекает claims сессии из JWT внешнего Identity Provider,
// определяет роль (user / admin) и помещает сессию в контекст запроса.
// Валидация подписи — через JWKS endpoint провайдера.
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/MicahParks/jwkset"
	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"

	apierrors "github.com/mkosareva/docportal/internal/api/errors"
)

// contextKey — тип для ключей контекста (избегаем коллизий).
type contextKey string

const (
	// ContextKeySession — сессия аутентифицированного субъекта в контексте запроса.
	ContextKeySession contextKey = "session"
)

// Роли субъектов портала.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// Session — извлечённые и обработанные claims из JWT.
// Помещается в контекст запроса для downstream handlers.
type Session struct {
	// UserID — sub из JWT.
	UserID string
	// Name — отображаемое имя субъекта (name или preferred_username).
	Name string
	// Email — email из JWT.
	Email string
	// Role — роль субъекта (user или admin).
	Role string
}

// IsAdmin сообщает, является ли субъект администратором портала.
func (s *Session) IsAdmin() bool {
	return s.Role == RoleAdmin
}

// AdminRegistry — интерфейс для регистрации администратора при аутентификации.
// Реализуется repository.AdminRepository: снимок администраторов используется
// как список получателей широковещательных уведомлений.
type AdminRegistry interface {
	Upsert(ctx context.Context, id, displayName string) error
}

// portalClaims — raw claims из JWT для парсинга.
type portalClaims struct {
	jwt.RegisteredClaims
	// Name — отображаемое имя.
	Name string `json:"name,omitempty"`
	// PreferredUsername — имя пользователя (fallback для Name).
	PreferredUsername string `json:"preferred_username,omitempty"`
	// Email — электронная почта.
	Email string `json:"email,omitempty"`
	// Role — роль субъекта на портале.
	Role string `json:"role,omitempty"`
	// RealmAccess — вложенная структура с ролями (формат Keycloak).
	RealmAccess *realmAccess `json:"realm_access,omitempty"`
}

// realmAccess — вложенная структура realm_access в JWT.
type realmAccess struct {
	Roles []string `json:"roles"`
}

// JWTAuth — middleware для JWT-аутентификации через JWKS.
type JWTAuth struct {
	jwks      keyfunc.Keyfunc
	logger    *slog.Logger
	admins    AdminRegistry
	issuer    string
	jwtLeeway time.Duration
}

// NewJWTAuth создаёт JWT middleware с JWKS внешнего Identity Provider.
// jwksURL — URL к JWKS endpoint.
// issuer — ожидаемый issuer JWT (пустой — не проверять).
// admins — регистр администраторов (может быть nil).
func NewJWTAuth(
	jwksURL string,
	issuer string,
	admins AdminRegistry,
	logger *slog.Logger,
) (*JWTAuth, error) {
	// JWKS Storage с фоновым обновлением.
	// NoErrorReturnFirstHTTPReq — стартуем даже если провайдер ещё недоступен.
	storage, err := jwkset.NewStorageFromHTTP(jwksURL, jwkset.HTTPClientStorageOptions{
		NoErrorReturnFirstHTTPReq: true,
		RefreshInterval:           time.Hour,
		RefreshErrorHandler: func(_ context.Context, err error) {
			logger.Error("Ошибка обновления JWKS",
				slog.String("error", err.Error()),
				slog.String("url", jwksURL),
			)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("создание JWKS storage: %w", err)
	}

	k, err := keyfunc.New(keyfunc.Options{
		Storage: storage,
	})
	if err != nil {
		return nil, fmt.Errorf("создание keyfunc: %w", err)
	}

	return &JWTAuth{
		jwks:      k,
		logger:    logger.With(slog.String("component", "jwt_auth")),
		admins:    admins,
		issuer:    issuer,
		jwtLeeway: 30 * time.Second,
	}, nil
}

// NewJWTAuthWithKeyfunc создаёт JWT middleware с предоставленной keyfunc.
// Используется в тестах для подстановки mock JWKS.
func NewJWTAuthWithKeyfunc(
	kf keyfunc.Keyfunc,
	issuer string,
	admins AdminRegistry,
	logger *slog.Logger,
) *JWTAuth {
	return &JWTAuth{
		jwks:   kf,
		logger: logger.With(slog.String("component", "jwt_auth")),
		admins: admins,
		issuer: issuer,
	}
}

// Middleware возвращает HTTP middleware для JWT-аутентификации.
// Извлекает Bearer token, валидирует подпись (RS256), извлекает claims,
// вычисляет роль и помещает сессию в контекст.
func (j *JWTAuth) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Извлекаем Bearer token
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				apierrors.Unauthorized(w, "Отсутствует заголовок Authorization")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				apierrors.Unauthorized(w, "Неверный формат Authorization: ожидается Bearer <token>")
				return
			}

			tokenString := parts[1]
			if tokenString == "" {
				apierrors.Unauthorized(w, "Пустой Bearer token")
				return
			}

			// Парсинг и валидация JWT через JWKS
			rawClaims := &portalClaims{}
			parserOpts := []jwt.ParserOption{
				jwt.WithValidMethods([]string{"RS256"}),
				jwt.WithExpirationRequired(),
				jwt.WithLeeway(j.jwtLeeway),
			}
			if j.issuer != "" {
				parserOpts = append(parserOpts, jwt.WithIssuer(j.issuer))
			}

			token, err := jwt.ParseWithClaims(tokenString, rawClaims, j.jwks.KeyfuncCtx(r.Context()), parserOpts...)
			if err != nil {
				j.logger.Debug("JWT валидация не пройдена",
					slog.String("error", err.Error()),
					slog.String("remote_addr", r.RemoteAddr),
				)
				apierrors.Unauthorized(w, "Невалидный или просроченный токен")
				return
			}

			if !token.Valid {
				apierrors.Unauthorized(w, "Невалидный токен")
				return
			}

			// Извлекаем sub
			subject, err := rawClaims.GetSubject()
			if err != nil || subject == "" {
				apierrors.Unauthorized(w, "Отсутствует sub в токене")
				return
			}

			session := j.buildSession(r.Context(), rawClaims)

			// Помещаем сессию в контекст
			ctx := context.WithValue(r.Context(), ContextKeySession, session)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// buildSession формирует Session из raw claims.
// Администратора при первом появлении регистрирует в снимке portal_admins.
func (j *JWTAuth) buildSession(ctx context.Context, raw *portalClaims) *Session {
	name := raw.Name
	if name == "" {
		name = raw.PreferredUsername
	}

	session := &Session{
		UserID: raw.Subject,
		Name:   name,
		Email:  raw.Email,
		Role:   extractRole(raw),
	}

	if session.IsAdmin() && j.admins != nil {
		if err := j.admins.Upsert(ctx, session.UserID, session.Name); err != nil {
			j.logger.Warn("Ошибка регистрации администратора",
				slog.String("admin_id", session.UserID),
				slog.String("error", err.Error()),
			)
		}
	}

	return session
}

// extractRole вычисляет роль субъекта: прямой claim "role" имеет приоритет,
// иначе ищем "admin" в realm_access.roles. По умолчанию — user.
func extractRole(raw *portalClaims) string {
	if raw.Role == RoleAdmin || raw.Role == RoleUser {
		return raw.Role
	}
	if raw.RealmAccess != nil {
		for _, r := range raw.RealmAccess.Roles {
			if r == RoleAdmin {
				return RoleAdmin
			}
		}
	}
	return RoleUser
}

// --- RBAC middleware helpers ---

// RequireAdmin возвращает middleware, требующий роль администратора.
// Должен использоваться ПОСЛЕ JWTAuth.Middleware().
func RequireAdmin() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session := SessionFromContext(r.Context())
			if session == nil {
				apierrors.Unauthorized(w, "Отсутствует сессия в контексте")
				return
			}

			if !session.IsAdmin() {
				apierrors.Forbidden(w, "Недостаточно прав: требуется роль администратора")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// --- Context helpers ---

// SessionFromContext извлекает Session из контекста запроса.
// Возвращает nil, если сессия не найдена.
func SessionFromContext(ctx context.Context) *Session {
	session, _ := ctx.Value(ContextKeySession).(*Session)
	return session
}

// UserIDFromContext извлекает идентификатор субъекта из контекста запроса.
// Возвращает пустую строку, если сессия не найдена.
func UserIDFromContext(ctx context.Context) string {
	session := SessionFromContext(ctx)
	if session == nil {
		return ""
	}
	return session.UserID
}

// Close освобождает ресурсы JWT middleware.
func (j *JWTAuth) Close() {
	// keyfunc v3 не требует явного закрытия
}
