package utils

import (
	"context"

	"github.com/mmdatafocus/stockroom_backend/appctx"
)

var (
	ContextKeyTokenId       = appctx.ContextKeyTokenId
	ContextKeyAccountId     = appctx.ContextKeyAccountId
	ContextKeyLogin         = appctx.ContextKeyLogin
	ContextKeyIsPrivileged  = appctx.ContextKeyIsPrivileged
	ContextKeyCorrelationId = appctx.ContextKeyCorrelationId
)

func GetTokenIdFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyTokenId)
}

func GetAccountIdFromContext(ctx context.Context) (int, bool) {
	return appctx.GetInt(ctx, ContextKeyAccountId)
}

func GetLoginFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyLogin)
}

func GetIsPrivilegedFromContext(ctx context.Context) (bool, bool) {
	return appctx.GetBool(ctx, ContextKeyIsPrivileged)
}

func GetCorrelationIdFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyCorrelationId)
}

func SetTokenIdInContext(ctx context.Context, tokenId string) context.Context {
	return appctx.Set(ctx, ContextKeyTokenId, tokenId)
}

func SetAccountIdInContext(ctx context.Context, accountId int) context.Context {
	return appctx.Set(ctx, ContextKeyAccountId, accountId)
}

func SetLoginInContext(ctx context.Context, login string) context.Context {
	return appctx.Set(ctx, ContextKeyLogin, login)
}

func SetIsPrivilegedInContext(ctx context.Context, isPrivileged bool) context.Context {
	return appctx.Set(ctx, ContextKeyIsPrivileged, isPrivileged)
}

func SetCorrelationIdInContext(ctx context.Context, correlationId string) context.Context {
	return appctx.Set(ctx, ContextKeyCorrelationId, correlationId)
}
