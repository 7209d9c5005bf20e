package syncctx

import "context"

type contextKey string

const (
	externalOriginKey contextKey = "externalOrigin"
	bulkLoadKey       contextKey = "bulkLoad"
	bypassKey         contextKey = "bypassPublish"
	actorKey          contextKey = "actor"
)

// Actor identifies who performs a write.
type Actor struct {
	Login     string
	CompanyID int64
}

// WithExternalOrigin tags writes made with ctx as coming from the external system.
func WithExternalOrigin(ctx context.Context) context.Context {
	return context.WithValue(orBackground(ctx), externalOriginKey, true)
}

// IsExternalOrigin reports whether writes made with ctx came from the external system.
func IsExternalOrigin(ctx context.Context) bool {
	return flag(ctx, externalOriginKey)
}

// WithBulkLoad marks ctx as part of an administrative or bulk load.
func WithBulkLoad(ctx context.Context) context.Context {
	return context.WithValue(orBackground(ctx), bulkLoadKey, true)
}

// IsBulkLoad reports whether ctx belongs to a bulk load.
func IsBulkLoad(ctx context.Context) bool {
	return flag(ctx, bulkLoadKey)
}

// WithBypass disables outbound publication for writes made with ctx.
func WithBypass(ctx context.Context) context.Context {
	return context.WithValue(orBackground(ctx), bypassKey, true)
}

// IsBypassed reports whether outbound publication is disabled for ctx.
func IsBypassed(ctx context.Context) bool {
	return flag(ctx, bypassKey)
}

// SkipPublish reports whether any of the skip flags is set.
func SkipPublish(ctx context.Context) bool {
	return IsExternalOrigin(ctx) || IsBulkLoad(ctx) || IsBypassed(ctx)
}

// WithActor returns a context carrying the acting identity.
func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(orBackground(ctx), actorKey, actor)
}

// ActorFromContext returns the acting identity, if any.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	if ctx == nil {
		return Actor{}, false
	}
	actor, ok := ctx.Value(actorKey).(Actor)
	if !ok || actor.Login == "" {
		return Actor{}, false
	}
	return actor, true
}

func flag(ctx context.Context, key contextKey) bool {
	if ctx == nil {
		return false
	}
	value, ok := ctx.Value(key).(bool)
	return ok && value
}

func orBackground(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
