package auth

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/memoria/memoria/internal/config"
	"github.com/memoria/memoria/internal/storage"
)

// Context key для хранения сессии
type contextKey string

const SessionKey contextKey = "session"

// GetSession извлекает сессию из контекста запроса
func GetSession(r *http.Request) *storage.Session {
	if sess, ok := r.Context().Value(SessionKey).(*storage.Session); ok {
		return sess
	}
	return nil
}

// IsAdmin проверяет привилегированность сессии запроса
func IsAdmin(r *http.Request) bool {
	if sess := GetSession(r); sess != nil {
		return sess.IsAdmin()
	}
	return false
}

// Auth управляет аутентификацией пользователей
type Auth struct {
	cfg   *config.Config
	store *storage.Store
}

// NewAuth создает новый сервис аутентификации
func NewAuth(cfg *config.Config, store *storage.Store) *Auth {
	return &Auth{
		cfg:   cfg,
		store: store,
	}
}

// EnsureAdminUser создает администратора если его нет
func (a *Auth) EnsureAdminUser() error {
	user, err := a.store.GetUser(a.cfg.Auth.AdminUsername)
	if err != nil {
		return fmt.Errorf("failed to check admin user: %w", err)
	}

	if user != nil {
		return nil // Админ уже существует
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(a.cfg.Auth.AdminPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	user = &storage.User{
		ID:           storage.GenerateID(),
		Username:     a.cfg.Auth.AdminUsername,
		PasswordHash: string(hash),
		Role:         storage.RoleAdmin,
		CreatedAt:    time.Now(),
	}

	if err := a.store.SaveUser(user); err != nil {
		return fmt.Errorf("failed to save admin user: %w", err)
	}

	return nil
}

// Login выполняет аутентификацию пользователя
func (a *Auth) Login(username, password string) (*storage.Session, error) {
	user, err := a.store.GetUser(username)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if user == nil {
		return nil, fmt.Errorf("invalid credentials")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, fmt.Errorf("invalid credentials")
	}

	// Обновляем время последнего входа, неудача не критична
	user.LastLogin = time.Now()
	_ = a.store.SaveUser(user)

	session := &storage.Session{
		ID:        storage.GenerateID(),
		UserID:    user.ID,
		Username:  user.Username,
		Role:      user.Role,
		CreatedAt: time.Now(),
		ExpiresAt: time.Now().Add(time.Duration(a.cfg.Auth.SessionMaxAge) * time.Second),
	}

	if err := a.store.SaveSession(session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	return session, nil
}

// Logout завершает сессию пользователя
func (a *Auth) Logout(sessionID string) error {
	return a.store.DeleteSession(sessionID)
}

// ValidateSession проверяет валидность сессии
func (a *Auth) ValidateSession(sessionID string) (*storage.Session, error) {
	session, err := a.store.GetSession(sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, nil
	}

	// Проверяем срок действия
	if time.Now().After(session.ExpiresAt) {
		a.store.DeleteSession(sessionID)
		return nil, nil
	}

	return session, nil
}

// Middleware проверяет аутентификацию для защищенных маршрутов
func (a *Auth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie("session")
		if err != nil {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		session, err := a.ValidateSession(cookie.Value)
		if err != nil || session == nil {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), SessionKey, session)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAdmin пропускает только привилегированные сессии.
// Для остальных маршрут отвечает 404, как будто его не существует:
// непривилегированный клиент не должен видеть сам факт наличия операции.
func (a *Auth) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !IsAdmin(r) {
			http.NotFound(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}
