package models

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/mmdatafocus/stockroom_backend/config"
	"github.com/mmdatafocus/stockroom_backend/utils"
	"gorm.io/gorm"
)

type LoginInfo struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	Account   Account   `json:"account"`
}

func tokenKey(tokenId string) string {
	return "Token:" + tokenId
}

func tokenSetKey(login string) string {
	return "Tokens:" + login
}

// Login checks the credentials and issues a signed token. When redis is
// configured the token is also registered so it can be revoked early.
func (inv *Inventory) Login(ctx context.Context, login string, password string) (*LoginInfo, error) {
	const op = "login"
	login = strings.TrimSpace(login)
	if login == "" || password == "" {
		return nil, inv.rejected(op, newError(ErrNotAuthenticated, "invalid login or password"))
	}

	var account Account
	err := inv.withReadTx(ctx, op, func(s *TxSession) error {
		err := s.DB().Where("login = ?", login).Take(&account).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return newError(ErrNotAuthenticated, "invalid login or password")
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	if account.ID == SentinelAccountId || utils.ComparePassword(account.PasswordHash, password) != nil {
		return nil, inv.rejected(op, newError(ErrNotAuthenticated, "invalid login or password"))
	}

	token, tokenId, err := utils.JwtGenerate(account.ID, account.Login, account.IsPrivileged)
	if err != nil {
		config.LogError(inv.logger, "inventory", op, "generate token", account.Login, err)
		return nil, inv.rejected(op, newError(ErrStoreUnavailable, "could not issue token"))
	}
	lifespan := utils.TokenLifespan()
	if err := config.AddRedisSet(ctx, tokenSetKey(account.Login), tokenId); err != nil {
		config.LogError(inv.logger, "inventory", op, "register token", account.Login, err)
		return nil, inv.rejected(op, &LedgerError{Kind: ErrStoreUnavailable, Detail: "register session", Err: err})
	}
	if err := config.SetRedisValue(ctx, tokenKey(tokenId), account.Login, lifespan); err != nil {
		config.LogError(inv.logger, "inventory", op, "register token", account.Login, err)
		return nil, inv.rejected(op, &LedgerError{Kind: ErrStoreUnavailable, Detail: "register session", Err: err})
	}

	return &LoginInfo{
		Token:     token,
		ExpiresAt: time.Now().Add(lifespan).UTC(),
		Account:   account,
	}, nil
}

// Logout revokes the session's token. Without redis tokens simply expire.
func (inv *Inventory) Logout(ctx context.Context, session Session) error {
	if !session.IsLoggedIn() {
		return newError(ErrNotAuthenticated, "no active session")
	}
	if session.TokenId == "" {
		return nil
	}
	if err := config.RemoveRedisKey(ctx, tokenKey(session.TokenId)); err != nil {
		return &LedgerError{Kind: ErrStoreUnavailable, Detail: "logout", Err: err}
	}
	if err := config.RemoveRedisSetMember(ctx, tokenSetKey(session.Login), session.TokenId); err != nil {
		return &LedgerError{Kind: ErrStoreUnavailable, Detail: "logout", Err: err}
	}
	return nil
}

// SessionActive reports whether tokenId is still registered. Without redis
// every unexpired token is active.
func SessionActive(ctx context.Context, tokenId string) (bool, error) {
	if config.GetRedisDB() == nil {
		return true, nil
	}
	_, exists, err := config.GetRedisValue(ctx, tokenKey(tokenId))
	if err != nil {
		return false, err
	}
	return exists, nil
}

// DestroyAllSessions revokes every registered token of login.
func DestroyAllSessions(ctx context.Context, login string) error {
	tokens, err := config.GetRedisSetMembers(ctx, tokenSetKey(login))
	if err != nil {
		return err
	}
	keys := make([]string, 0, len(tokens)+1)
	for _, token := range tokens {
		keys = append(keys, tokenKey(token))
	}
	keys = append(keys, tokenSetKey(login))
	return config.RemoveRedisKey(ctx, keys...)
}

// revokeSessions runs after a committed change; failure only leaves tokens to expire.
func (inv *Inventory) revokeSessions(ctx context.Context, login string) {
	if err := DestroyAllSessions(ctx, login); err != nil {
		config.LogWarn(inv.logger, "inventory", "revoke_sessions", "destroy sessions", login, err)
	}
}

// ResolveSession reloads the account behind s so that a deleted, renamed or
// demoted account cannot keep using a token issued before the change.
func (inv *Inventory) ResolveSession(ctx context.Context, s Session) (Session, error) {
	const op = "resolve_session"
	if !s.IsLoggedIn() || s.AccountId == SentinelAccountId {
		return Anonymous, inv.rejected(op, newError(ErrNotAuthenticated, "no active session"))
	}
	var account Account
	err := inv.withReadTx(ctx, op, func(tx *TxSession) error {
		err := tx.DB().Where("id = ?", s.AccountId).Take(&account).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return newError(ErrNotAuthenticated, "account %d no longer exists", s.AccountId)
		}
		return err
	})
	if err != nil {
		return Anonymous, err
	}
	if account.Login != s.Login {
		return Anonymous, inv.rejected(op, newError(ErrNotAuthenticated, "session login is stale"))
	}
	s.Privileged = account.IsPrivileged
	return s, nil
}
