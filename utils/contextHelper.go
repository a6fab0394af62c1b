package utils

import (
	"context"

	"bitbucket.org/mmdatafocus/books_reconcile/appctx"
	"github.com/google/uuid"
)

var (
	ContextKeyRunId         = appctx.ContextKeyRunId
	ContextKeyCorrelationId = appctx.ContextKeyCorrelationId
	ContextKeyCommand       = appctx.ContextKeyCommand
	ContextKeyMode          = appctx.ContextKeyMode
)

func GetRunIdFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyRunId)
}

func GetCorrelationIdFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyCorrelationId)
}

func GetCommandFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyCommand)
}

func GetModeFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyMode)
}

func SetRunIdInContext(ctx context.Context, runId string) context.Context {
	return appctx.Set(ctx, ContextKeyRunId, runId)
}

func SetCorrelationIdInContext(ctx context.Context, correlationId string) context.Context {
	return appctx.Set(ctx, ContextKeyCorrelationId, correlationId)
}

func SetCommandInContext(ctx context.Context, command string) context.Context {
	return appctx.Set(ctx, ContextKeyCommand, command)
}

func SetModeInContext(ctx context.Context, mode string) context.Context {
	return appctx.Set(ctx, ContextKeyMode, mode)
}

// NewRunContext stamps a fresh run id and correlation id onto ctx.
// An existing correlation id is kept so a caller can tie several runs together.
func NewRunContext(ctx context.Context, command string) context.Context {
	ctx = SetRunIdInContext(ctx, uuid.NewString())
	ctx = SetCommandInContext(ctx, command)
	if id, ok := GetCorrelationIdFromContext(ctx); !ok || id == "" {
		ctx = SetCorrelationIdInContext(ctx, uuid.NewString())
	}
	return ctx
}
