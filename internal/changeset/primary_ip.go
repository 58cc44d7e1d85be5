package changeset

import (
	"context"
	"errors"

	"github.com/netboxlabs/diode/internal/domain"
)

// ErrPrimaryIPNotFound means no primary_ip hint in the update data led to a
// persisted IP address attached to a device.
var ErrPrimaryIPNotFound = errors.New("primary IP not found")

// primaryIPFields are tried in order when locating the device an update
// without object_id refers to.
var primaryIPFields = []string{"primary_ip4", "primary_ip6"}

// ResolveDevicePrimaryIP locates a device through the primary IP hints of an
// update payload that carries no object_id. It returns the device id and the
// minimal field set to write: the device's required references plus the
// resolved primary IP id under the hinted family field.
func (r *Resolver) ResolveDevicePrimaryIP(ctx context.Context, data map[string]any) (int64, map[string]any, error) {
	for _, field := range primaryIPFields {
		raw, ok := data[field].(map[string]any)
		if !ok {
			continue
		}
		assignedRaw, ok := raw["assigned_object"].(map[string]any)
		if !ok {
			continue
		}

		assigned, err := r.ResolveAssignedObject(ctx, assignedRaw)
		if err != nil {
			var resErr *ResolutionError
			if errors.As(err, &resErr) {
				continue
			}
			return 0, nil, err
		}

		lookup := map[string]any{
			"assigned_object_type": assigned.ObjectType,
			"assigned_object_id":   assigned.ObjectID,
		}
		if addr, ok := raw["address"].(string); ok && addr != "" {
			lookup["address"] = addr
		}

		matches, err := r.reader.FindByFields(ctx, domain.IPAddressObjectType, lookup)
		if err != nil {
			return 0, nil, err
		}
		if len(matches) == 0 {
			continue
		}
		ipID := matches[0]["id"].(int64)

		iface, err := r.reader.GetByID(ctx, assigned.ObjectType, assigned.ObjectID)
		if err != nil {
			return 0, nil, err
		}
		if iface == nil {
			continue
		}
		deviceID, ok := asInt64(iface["device"])
		if !ok {
			continue
		}

		device, err := r.reader.GetByID(ctx, domain.DeviceObjectType, deviceID)
		if err != nil {
			return 0, nil, err
		}
		if device == nil {
			continue
		}

		payload := map[string]any{field: ipID}
		for _, name := range []string{"device_type", "role", "site"} {
			if v, ok := device[name]; ok {
				payload[name] = v
			}
		}
		return deviceID, payload, nil
	}

	return 0, nil, ErrPrimaryIPNotFound
}
