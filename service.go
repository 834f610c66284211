package bootstrap

import (
	"context"
	"reflect"
)

// Service is the lifecycle capability every infrastructure service provides.
// Both operations may block; the orchestrator issues them concurrently across
// services and forwards the hook context unchanged.
type Service interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// ServiceKey identifies a registered service by its concrete type.
// Two types that print the same never compare equal.
type ServiceKey struct {
	t reflect.Type
}

// KeyOf returns the key for the dynamic type of svc.
func KeyOf(svc Service) ServiceKey {
	return ServiceKey{t: reflect.TypeOf(svc)}
}

// Key returns the key for the type parameter T, which is normally the pointer
// type the service was registered with (Key[*storage.Store]()).
func Key[T any]() ServiceKey {
	return ServiceKey{t: reflect.TypeFor[T]()}
}

// Type returns the underlying type descriptor.
func (k ServiceKey) Type() reflect.Type {
	return k.t
}

// String returns the display name of the key.
func (k ServiceKey) String() string {
	if k.t == nil {
		return "<nil>"
	}
	return k.t.String()
}
