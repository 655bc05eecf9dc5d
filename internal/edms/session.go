package edms

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Authenticator — операция входа в EDMS. Реализуется *Client.
type Authenticator interface {
	Login(ctx context.Context, creds Credentials) (*LoginReply, error)
}

// SessionManager — единственный владелец session token (DST) процесса.
// Токен получается при первой необходимости и больше не обновляется:
// DM Server не сообщает срок жизни DST.
type SessionManager struct {
	auth   Authenticator
	creds  Credentials
	logger *slog.Logger

	mu    sync.RWMutex
	token string
}

// NewSessionManager создаёт менеджер сессии.
func NewSessionManager(auth Authenticator, creds Credentials, logger *slog.Logger) *SessionManager {
	return &SessionManager{
		auth:   auth,
		creds:  creds,
		logger: logger.With(slog.String("component", "edms_session")),
	}
}

// EnsureSession возвращает закэшированный токен или выполняет вход.
// Конкурентные вызовы при холодном старте выполняют ровно один вход.
// Ошибка входа не кэшируется: следующий вызов повторит попытку.
func (m *SessionManager) EnsureSession(ctx context.Context) (string, error) {
	m.mu.RLock()
	if m.token != "" {
		token := m.token
		m.mu.RUnlock()
		return token, nil
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	// Double-check после получения write lock
	if m.token != "" {
		return m.token, nil
	}

	reply, err := m.auth.Login(ctx, m.creds)
	if err != nil {
		m.logger.Error("Вход в EDMS не выполнен",
			slog.String("username", m.creds.Username),
			slog.String("error", err.Error()),
		)
		return "", fmt.Errorf("%w: %w", ErrAuth, err)
	}
	if reply.ResultCode != ResultSuccess || reply.Token == "" {
		m.logger.Error("EDMS отклонил вход",
			slog.String("username", m.creds.Username),
			slog.Int("result_code", reply.ResultCode),
		)
		return "", fmt.Errorf("%w: код результата %d", ErrAuth, reply.ResultCode)
	}

	m.token = reply.Token
	m.logger.Info("Сессия EDMS установлена",
		slog.String("username", m.creds.Username),
		slog.String("login_context", m.creds.LoginContext),
	)
	return m.token, nil
}
