package changeset

import (
	"context"

	"github.com/mitchellh/mapstructure"

	"github.com/netboxlabs/diode/internal/domain"
)

// assignableTypes maps the assigned_object wire key to the object type it
// selects. IP addresses currently attach to interfaces only.
var assignableTypes = map[string]string{
	"interface": domain.InterfaceObjectType,
}

// AssignedObject is a resolved polymorphic assignment target
type AssignedObject struct {
	ObjectType string
	ObjectID   int64
}

// interfaceRef is the identifying shape accepted for an interface assignment
type interfaceRef struct {
	ID     *int64     `mapstructure:"id"`
	Name   string     `mapstructure:"name"`
	Device *deviceRef `mapstructure:"device"`
}

type deviceRef struct {
	ID   *int64   `mapstructure:"id"`
	Name string   `mapstructure:"name"`
	Site *siteRef `mapstructure:"site"`
}

type siteRef struct {
	ID   *int64 `mapstructure:"id"`
	Name string `mapstructure:"name"`
}

// decodeRef decodes a wire map into a typed reference struct, tolerating the
// loose numeric types JSON decoding produces.
func decodeRef(raw any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	return dec.Decode(raw)
}

// ResolveAssignedObject resolves an assigned_object payload to the concrete
// entity an IP address attaches to. Identification failures are reported as
// *ResolutionError with producer-facing messages.
func (r *Resolver) ResolveAssignedObject(ctx context.Context, raw map[string]any) (*AssignedObject, error) {
	if len(raw) == 0 {
		return nil, insufficient(domain.InterfaceObjectType, "properties not provided for interface")
	}

	inner, ok := raw["interface"]
	if !ok {
		for key := range raw {
			if _, known := assignableTypes[key]; !known {
				return nil, notFound("", "unsupported assigned object type %s", key)
			}
		}
		return nil, insufficient(domain.InterfaceObjectType, "properties not provided for interface")
	}

	var ref interfaceRef
	if err := decodeRef(inner, &ref); err != nil {
		return nil, insufficient(domain.InterfaceObjectType, "properties not provided for interface")
	}

	if ref.ID != nil {
		entity, err := r.reader.GetByID(ctx, domain.InterfaceObjectType, *ref.ID)
		if err != nil {
			return nil, err
		}
		if entity == nil {
			return nil, notFound(domain.InterfaceObjectType, "interface with id %d does not exist", *ref.ID)
		}
		return &AssignedObject{ObjectType: domain.InterfaceObjectType, ObjectID: *ref.ID}, nil
	}

	if ref.Name == "" && ref.Device == nil {
		return nil, insufficient(domain.InterfaceObjectType, "properties not provided for interface")
	}
	if ref.Name == "" {
		return nil, insufficient(domain.InterfaceObjectType, "Interface needs to have either id or name provided")
	}
	if ref.Device == nil || (ref.Device.ID == nil && ref.Device.Name == "") {
		return nil, insufficient(domain.InterfaceObjectType, "Interface device needs to have either id or name provided")
	}

	deviceID, err := r.resolveDeviceRef(ctx, ref.Device)
	if err != nil {
		return nil, err
	}

	matches, err := r.reader.FindByFields(ctx, domain.InterfaceObjectType, map[string]any{
		"name":   ref.Name,
		"device": deviceID,
	})
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, notFound(domain.InterfaceObjectType, "Assigned object with name %s does not exist", ref.Name)
	}

	return &AssignedObject{
		ObjectType: domain.InterfaceObjectType,
		ObjectID:   matches[0]["id"].(int64),
	}, nil
}

func (r *Resolver) resolveDeviceRef(ctx context.Context, ref *deviceRef) (int64, error) {
	if ref.ID != nil {
		entity, err := r.reader.GetByID(ctx, domain.DeviceObjectType, *ref.ID)
		if err != nil {
			return 0, err
		}
		if entity == nil {
			return 0, notFound(domain.DeviceObjectType, "device with id %d does not exist", *ref.ID)
		}
		return *ref.ID, nil
	}

	lookup := map[string]any{"name": ref.Name}
	if ref.Site != nil {
		if ref.Site.ID == nil && ref.Site.Name == "" {
			return 0, insufficient(domain.SiteObjectType, "Interface device site needs to have either id or name provided")
		}
		siteID, err := r.resolveSiteRef(ctx, ref.Site)
		if err != nil {
			return 0, err
		}
		lookup["site"] = siteID
	}

	matches, err := r.reader.FindByFields(ctx, domain.DeviceObjectType, lookup)
	if err != nil {
		return 0, err
	}
	switch len(matches) {
	case 0:
		return 0, notFound(domain.DeviceObjectType, "device %s does not exist", ref.Name)
	case 1:
		return matches[0]["id"].(int64), nil
	default:
		return 0, ambiguous(domain.DeviceObjectType, "device %s matches more than one object", ref.Name)
	}
}

func (r *Resolver) resolveSiteRef(ctx context.Context, ref *siteRef) (int64, error) {
	if ref.ID != nil {
		entity, err := r.reader.GetByID(ctx, domain.SiteObjectType, *ref.ID)
		if err != nil {
			return 0, err
		}
		if entity == nil {
			return 0, notFound(domain.SiteObjectType, "site with id %d does not exist", *ref.ID)
		}
		return *ref.ID, nil
	}

	matches, err := r.reader.FindByFields(ctx, domain.SiteObjectType, map[string]any{"name": ref.Name})
	if err != nil {
		return 0, err
	}
	if len(matches) == 0 {
		return 0, notFound(domain.SiteObjectType, "site %s does not exist", ref.Name)
	}
	return matches[0]["id"].(int64), nil
}
