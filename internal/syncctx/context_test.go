package syncctx

import (
	"context"
	"testing"
)

func TestSkipFlags(t *testing.T) {
	ctx := context.Background()
	if SkipPublish(ctx) {
		t.Fatalf("plain context must not skip publication")
	}
	if !SkipPublish(WithExternalOrigin(ctx)) {
		t.Fatalf("external origin must skip publication")
	}
	if !SkipPublish(WithBulkLoad(ctx)) {
		t.Fatalf("bulk load must skip publication")
	}
	if !SkipPublish(WithBypass(ctx)) {
		t.Fatalf("bypass must skip publication")
	}
}

func TestActorFromContext(t *testing.T) {
	if _, ok := ActorFromContext(context.Background()); ok {
		t.Fatalf("expected no actor")
	}
	ctx := WithActor(context.Background(), Actor{Login: "admin", CompanyID: 1})
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Login != "admin" || actor.CompanyID != 1 {
		t.Fatalf("unexpected actor %+v", actor)
	}
}
