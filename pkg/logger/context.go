package logger

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"
	"time"
)

type contextKey int

const (
	cycleIDKey contextKey = iota
	ownerIDKey
)

var cycleSeq atomic.Uint64

// NewCycleID returns an id unique within the process for one poll cycle.
func NewCycleID() string {
	return fmt.Sprintf("%d-%d-%d", time.Now().Unix(), os.Getpid(), cycleSeq.Add(1))
}

// WithCycleID stores the poll cycle id in ctx
func WithCycleID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, cycleIDKey, id)
}

// CycleID returns the cycle id stored in ctx, or ""
func CycleID(ctx context.Context) string {
	if id, ok := ctx.Value(cycleIDKey).(string); ok {
		return id
	}
	return ""
}

// WithOwnerID stores the authenticated owner in ctx
func WithOwnerID(ctx context.Context, owner string) context.Context {
	return context.WithValue(ctx, ownerIDKey, owner)
}

// OwnerID returns the owner stored in ctx, or ""
func OwnerID(ctx context.Context) string {
	if owner, ok := ctx.Value(ownerIDKey).(string); ok {
		return owner
	}
	return ""
}
