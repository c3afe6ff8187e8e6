package session

import (
	"github.com/ytget/mediaporter/internal/model"
)

// Gate checks resource entitlements against the published session
type Gate struct {
	store *Store
}

// NewGate creates a gate reading from store
func NewGate(store *Store) *Gate {
	return &Gate{store: store}
}

// Check returns an AuthRequired or VipRequired error when the current session
// cannot access a resource with the given requirement.
func (g *Gate) Check(access model.Access) error {
	sess := g.store.Snapshot()
	switch access {
	case model.AccessLoginRequired:
		if !sess.Authenticated {
			return model.NewError(model.ErrorAuthRequired, "login required")
		}
	case model.AccessVipRequired:
		if !sess.Authenticated {
			return model.NewError(model.ErrorAuthRequired, "login required for member content")
		}
		if !sess.VIP {
			return model.NewError(model.ErrorVipRequired, "active VIP membership required")
		}
	}
	return nil
}
