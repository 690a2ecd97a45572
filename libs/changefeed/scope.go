package changefeed

import (
	"fmt"
	"strings"
)

// ScopeKind names who a subscription is filtered by.
type ScopeKind string

const (
	ScopeBusiness  ScopeKind = "business"
	ScopeCustomer  ScopeKind = "customer"
	ScopeRecipient ScopeKind = "recipient"
)

// Scope is a subscription filter such as "business:<id>".
type Scope struct {
	Kind ScopeKind
	ID   string
}

func (s Scope) String() string { return string(s.Kind) + ":" + s.ID }

func BusinessScope(id string) Scope  { return Scope{Kind: ScopeBusiness, ID: id} }
func CustomerScope(id string) Scope  { return Scope{Kind: ScopeCustomer, ID: id} }
func RecipientScope(id string) Scope { return Scope{Kind: ScopeRecipient, ID: id} }

func ParseScope(raw string) (Scope, error) {
	kind, id, ok := strings.Cut(strings.TrimSpace(raw), ":")
	if !ok || id == "" {
		return Scope{}, fmt.Errorf("invalid scope %q", raw)
	}
	switch ScopeKind(kind) {
	case ScopeBusiness, ScopeCustomer, ScopeRecipient:
		return Scope{Kind: ScopeKind(kind), ID: id}, nil
	}
	return Scope{}, fmt.Errorf("unknown scope kind %q", kind)
}

// Table returns the table a scope kind subscribes to.
func (s Scope) Table() string {
	if s.Kind == ScopeRecipient {
		return TableNotifications
	}
	return TableAppointments
}

// Scopes lists every scope an appointment change is visible in.
func (c AppointmentChange) Scopes() []Scope {
	r := c.Subject()
	if r == nil {
		return nil
	}
	var out []Scope
	if r.BusinessID != "" {
		out = append(out, BusinessScope(r.BusinessID))
	}
	if r.CustomerID != "" {
		out = append(out, CustomerScope(r.CustomerID))
	}
	return out
}

func (c NotificationChange) Scopes() []Scope {
	r := c.Subject()
	if r == nil || r.RecipientID == "" {
		return nil
	}
	return []Scope{RecipientScope(r.RecipientID)}
}
