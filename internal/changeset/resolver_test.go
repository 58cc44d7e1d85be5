package changeset

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netboxlabs/diode/internal/domain"
	"github.com/netboxlabs/diode/internal/repository"
	"github.com/netboxlabs/diode/internal/repository/sqlite"
)

func newTestStore(t *testing.T) (*sqlite.Store, *domain.Registry) {
	t.Helper()
	reg := domain.NewRegistry()
	store, err := sqlite.New(":memory:", reg)
	require.NoError(t, err)
	t.Cleanup(func() {
		store.Close()
	})
	return store, reg
}

// seed inserts an entity through a committed transaction
func seed(t *testing.T, store repository.Store, objectType string, fields map[string]any) int64 {
	t.Helper()
	tx, err := store.Begin(context.Background())
	require.NoError(t, err)
	id, err := tx.Insert(context.Background(), objectType, fields)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
	return id
}

func TestResolveByID(t *testing.T) {
	store, reg := newTestStore(t)
	ctx := context.Background()
	resolver := NewResolver(reg, store)

	siteID := seed(t, store, domain.SiteObjectType, map[string]any{"name": "Site A", "slug": "site-a"})

	id, err := resolver.Resolve(ctx, domain.SiteObjectType, map[string]any{"id": float64(siteID)})
	require.NoError(t, err)
	assert.Equal(t, siteID, id)

	_, err = resolver.Resolve(ctx, domain.SiteObjectType, map[string]any{"id": float64(999)})
	var resErr *ResolutionError
	require.ErrorAs(t, err, &resErr)
	assert.Equal(t, ResolutionNotFound, resErr.Kind)
	assert.Equal(t, "site with id 999 does not exist", resErr.Message)
}

func TestResolveByNaturalKey(t *testing.T) {
	store, reg := newTestStore(t)
	ctx := context.Background()
	resolver := NewResolver(reg, store)

	siteID := seed(t, store, domain.SiteObjectType, map[string]any{"name": "Site A", "slug": "site-a"})

	id, err := resolver.Resolve(ctx, domain.SiteObjectType, map[string]any{"name": "Site A"})
	require.NoError(t, err)
	assert.Equal(t, siteID, id)

	_, err = resolver.Resolve(ctx, domain.SiteObjectType, map[string]any{"name": "Site B"})
	var resErr *ResolutionError
	require.ErrorAs(t, err, &resErr)
	assert.Equal(t, ResolutionNotFound, resErr.Kind)
}

func TestResolveInsufficientAttributes(t *testing.T) {
	store, reg := newTestStore(t)
	resolver := NewResolver(reg, store)

	_, err := resolver.Resolve(context.Background(), domain.DeviceObjectType, map[string]any{"name": "core-1"})
	var resErr *ResolutionError
	require.ErrorAs(t, err, &resErr)
	assert.Equal(t, ResolutionInsufficient, resErr.Kind)
	assert.Equal(t, "device reference requires name, site", resErr.Message)
}

func TestResolveNestedReference(t *testing.T) {
	store, reg := newTestStore(t)
	ctx := context.Background()
	resolver := NewResolver(reg, store)

	siteID := seed(t, store, domain.SiteObjectType, map[string]any{"name": "Site A", "slug": "site-a"})
	roleID := seed(t, store, domain.DeviceRoleObjectType, map[string]any{"name": "router", "slug": "router"})
	mfrID := seed(t, store, domain.ManufacturerObjectType, map[string]any{"name": "Acme", "slug": "acme"})
	dtID := seed(t, store, domain.DeviceTypeObjectType, map[string]any{"model": "X1000", "slug": "x1000", "manufacturer": mfrID})
	deviceID := seed(t, store, domain.DeviceObjectType, map[string]any{
		"name": "core-1", "site": siteID, "role": roleID, "device_type": dtID,
	})

	id, err := resolver.Resolve(ctx, domain.DeviceObjectType, map[string]any{
		"name": "core-1",
		"site": map[string]any{"name": "Site A"},
	})
	require.NoError(t, err)
	assert.Equal(t, deviceID, id)
}

func TestResolveAmbiguousMatch(t *testing.T) {
	store, reg := newTestStore(t)
	ctx := context.Background()
	resolver := NewResolver(reg, store)

	// ipam.ipaddress carries no uniqueness constraint on address
	seed(t, store, domain.IPAddressObjectType, map[string]any{"address": "192.168.0.1/24"})
	seed(t, store, domain.IPAddressObjectType, map[string]any{"address": "192.168.0.1/24"})

	_, err := resolver.Resolve(ctx, domain.IPAddressObjectType, map[string]any{"address": "192.168.0.1/24"})
	var resErr *ResolutionError
	require.ErrorAs(t, err, &resErr)
	assert.Equal(t, ResolutionAmbiguous, resErr.Kind)
}

func TestResolveAssignedObject(t *testing.T) {
	store, reg := newTestStore(t)
	ctx := context.Background()
	resolver := NewResolver(reg, store)

	siteID := seed(t, store, domain.SiteObjectType, map[string]any{"name": "Site A", "slug": "site-a"})
	roleID := seed(t, store, domain.DeviceRoleObjectType, map[string]any{"name": "router", "slug": "router"})
	mfrID := seed(t, store, domain.ManufacturerObjectType, map[string]any{"name": "Acme", "slug": "acme"})
	dtID := seed(t, store, domain.DeviceTypeObjectType, map[string]any{"model": "X1000", "slug": "x1000", "manufacturer": mfrID})
	deviceID := seed(t, store, domain.DeviceObjectType, map[string]any{
		"name": "core-1", "site": siteID, "role": roleID, "device_type": dtID,
	})
	ifaceID := seed(t, store, domain.InterfaceObjectType, map[string]any{"name": "eth0", "device": deviceID})

	t.Run("by name and device", func(t *testing.T) {
		assigned, err := resolver.ResolveAssignedObject(ctx, map[string]any{
			"interface": map[string]any{
				"name":   "eth0",
				"device": map[string]any{"name": "core-1", "site": map[string]any{"name": "Site A"}},
			},
		})
		require.NoError(t, err)
		assert.Equal(t, domain.InterfaceObjectType, assigned.ObjectType)
		assert.Equal(t, ifaceID, assigned.ObjectID)
	})

	t.Run("by id", func(t *testing.T) {
		assigned, err := resolver.ResolveAssignedObject(ctx, map[string]any{
			"interface": map[string]any{"id": float64(ifaceID)},
		})
		require.NoError(t, err)
		assert.Equal(t, ifaceID, assigned.ObjectID)
	})

	t.Run("empty properties", func(t *testing.T) {
		_, err := resolver.ResolveAssignedObject(ctx, map[string]any{})
		var resErr *ResolutionError
		require.ErrorAs(t, err, &resErr)
		assert.Equal(t, "properties not provided for interface", resErr.Message)
	})

	t.Run("missing device", func(t *testing.T) {
		_, err := resolver.ResolveAssignedObject(ctx, map[string]any{
			"interface": map[string]any{"name": "eth0"},
		})
		var resErr *ResolutionError
		require.ErrorAs(t, err, &resErr)
		assert.Equal(t, "Interface device needs to have either id or name provided", resErr.Message)
	})

	t.Run("missing interface name", func(t *testing.T) {
		_, err := resolver.ResolveAssignedObject(ctx, map[string]any{
			"interface": map[string]any{"device": map[string]any{"name": "core-1"}},
		})
		var resErr *ResolutionError
		require.ErrorAs(t, err, &resErr)
		assert.Equal(t, "Interface needs to have either id or name provided", resErr.Message)
	})

	t.Run("site without id or name", func(t *testing.T) {
		_, err := resolver.ResolveAssignedObject(ctx, map[string]any{
			"interface": map[string]any{
				"name":   "eth0",
				"device": map[string]any{"name": "core-1", "site": map[string]any{}},
			},
		})
		var resErr *ResolutionError
		require.ErrorAs(t, err, &resErr)
		assert.Equal(t, "Interface device site needs to have either id or name provided", resErr.Message)
	})

	t.Run("unknown interface", func(t *testing.T) {
		_, err := resolver.ResolveAssignedObject(ctx, map[string]any{
			"interface": map[string]any{
				"name":   "eth9",
				"device": map[string]any{"name": "core-1"},
			},
		})
		var resErr *ResolutionError
		require.ErrorAs(t, err, &resErr)
		assert.Equal(t, "Assigned object with name eth9 does not exist", resErr.Message)
	})
}
