package models

import "fmt"

type ScopeKind string

const (
	ScopeRider   ScopeKind = "rider"
	ScopeSede    ScopeKind = "sede"
	ScopeCourier ScopeKind = "courier"
)

func (k ScopeKind) Valid() bool {
	switch k {
	case ScopeRider, ScopeSede, ScopeCourier:
		return true
	}
	return false
}

// Scope is the unit a cuadre is computed and settled for.
type Scope struct {
	Kind ScopeKind `json:"kind"`
	ID   uint      `json:"id"`
}

func (s Scope) String() string { return fmt.Sprintf("%s:%d", s.Kind, s.ID) }

// Column is the orders column that carries the scope id.
func (s Scope) Column() string {
	switch s.Kind {
	case ScopeRider:
		return "rider_id"
	case ScopeSede:
		return "sede_id"
	default:
		return "courier_id"
	}
}

func (s Scope) Matches(o Order) bool {
	switch s.Kind {
	case ScopeRider:
		return o.RiderID != nil && *o.RiderID == s.ID
	case ScopeSede:
		return o.SedeID == s.ID
	case ScopeCourier:
		return o.CourierID == s.ID
	}
	return false
}
