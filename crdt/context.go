package crdt

import "github.com/vespera-atelier/vespera-bindery/types"

// OperationContext carries the ambient identity (user, session, client) a
// caller operates under; the convenience mutators, which take no user_id
// (Codex.SetMetadata and friends), read it to attribute the operations they
// pass to CreateOperation.
type OperationContext struct {
	UserID    types.UserID
	SessionID *string
	ClientID  *string
	Metadata  map[string]string
}

// NewOperationContext returns a context for userID with no session/client.
func NewOperationContext(userID types.UserID) OperationContext {
	return OperationContext{UserID: userID, Metadata: make(map[string]string)}
}

// SystemOperationContext returns the context used for system-initiated
// writes (template initialization, migrations).
func SystemOperationContext() OperationContext {
	return NewOperationContext("system")
}

// WithSession returns a copy of the context carrying sessionID.
func (c OperationContext) WithSession(sessionID string) OperationContext {
	c.SessionID = &sessionID
	return c
}

// WithClient returns a copy of the context carrying clientID.
func (c OperationContext) WithClient(clientID string) OperationContext {
	c.ClientID = &clientID
	return c
}

// WithMetadata returns a copy of the context with key set to value.
func (c OperationContext) WithMetadata(key, value string) OperationContext {
	cp := make(map[string]string, len(c.Metadata)+1)
	for k, v := range c.Metadata {
		cp[k] = v
	}
	cp[key] = value
	c.Metadata = cp
	return c
}
