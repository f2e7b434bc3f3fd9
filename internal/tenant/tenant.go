// Package tenant resolves and carries the isolation boundary every request
// operates within. Tenancy here is a plain foreign-key column
// (public.tenants, referenced by tenant_id elsewhere) rather than the
// schema-per-tenant model some operational backends use: there is no
// per-request schema switch and no dedicated connection to carry it.
package tenant

import (
	"context"

	"github.com/google/uuid"
)

// Info identifies the tenant a request is scoped to.
type Info struct {
	ID   uuid.UUID
	Name string
	Slug string
}

type ctxKey string

const infoKey ctxKey = "tenant_info"

// NewContext attaches info to ctx.
func NewContext(ctx context.Context, info *Info) context.Context {
	return context.WithValue(ctx, infoKey, info)
}

// FromContext extracts the tenant attached by NewContext, or nil.
func FromContext(ctx context.Context) *Info {
	v, _ := ctx.Value(infoKey).(*Info)
	return v
}
