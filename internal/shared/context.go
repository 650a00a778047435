package shared

import "context"

// Actor is the authenticated caller context handed to the core by the HTTP
// boundary. Store selection is resolved here explicitly instead of comparing
// role strings inside services.
type Actor struct {
	UserID  int64
	StoreID int64
	Admin   bool
}

// EffectiveStore resolves which store an operation acts on. Admins may target
// any store (falling back to their own when none is requested); staff are
// pinned to their assigned store.
func (a Actor) EffectiveStore(requested int64) (int64, error) {
	if a.Admin {
		if requested != 0 {
			return requested, nil
		}
		return a.StoreID, nil
	}
	if requested != 0 && requested != a.StoreID {
		return 0, NewForbidden("staff may only act on their assigned store")
	}
	return a.StoreID, nil
}

type actorContextKey struct{}

// ContextWithActor stores the actor in context.
func ContextWithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext extracts the actor from context.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(Actor)
	return actor, ok
}
