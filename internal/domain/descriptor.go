package domain

// FieldKind describes how a field value is typed and stored
type FieldKind string

const (
	KindString FieldKind = "string"
	KindInt    FieldKind = "int"
	KindBool   FieldKind = "bool"

	// KindRef is a foreign key to another object type, carried on the wire
	// either as a numeric id or as a nested soft reference
	KindRef FieldKind = "ref"
)

// Field describes one writable attribute of an object type
type Field struct {
	Name     string
	Kind     FieldKind
	Required bool

	// Ref names the target object type when Kind == KindRef
	Ref string

	// Default is applied on create when the caller omits the field
	Default any
}

// Descriptor describes one supported object type: its storage table, its
// writable fields, the natural key used to resolve soft references, and the
// uniqueness constraints the validator pre-checks.
type Descriptor struct {
	Type       string
	Table      string
	Display    string
	NaturalKey []string
	Fields     []Field
	Unique     [][]string
}

// Field returns the named field definition
func (d *Descriptor) Field(name string) (Field, bool) {
	for _, f := range d.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Registry is the closed set of supported object types. It is constructed
// once at startup and passed by reference into the change-set engine so the
// supported set is swappable per deployment.
type Registry struct {
	byType map[string]*Descriptor
	order  []string
}

// Get returns the descriptor for an object type
func (r *Registry) Get(objectType string) (*Descriptor, bool) {
	d, ok := r.byType[objectType]
	return d, ok
}

// Types returns the supported object type names in registration order
func (r *Registry) Types() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// NewRegistry builds the default descriptor set
func NewRegistry() *Registry {
	r := &Registry{byType: make(map[string]*Descriptor)}

	r.add(&Descriptor{
		Type:       SiteObjectType,
		Table:      "dcim_site",
		Display:    "name",
		NaturalKey: []string{"name"},
		Fields: []Field{
			{Name: "name", Kind: KindString, Required: true},
			{Name: "slug", Kind: KindString},
			{Name: "status", Kind: KindString, Default: DefaultSiteStatus},
			{Name: "facility", Kind: KindString},
			{Name: "description", Kind: KindString},
			{Name: "comments", Kind: KindString},
		},
		Unique: [][]string{{"name"}, {"slug"}},
	})

	r.add(&Descriptor{
		Type:       ManufacturerObjectType,
		Table:      "dcim_manufacturer",
		Display:    "name",
		NaturalKey: []string{"name"},
		Fields: []Field{
			{Name: "name", Kind: KindString, Required: true},
			{Name: "slug", Kind: KindString},
			{Name: "description", Kind: KindString},
		},
		Unique: [][]string{{"name"}, {"slug"}},
	})

	r.add(&Descriptor{
		Type:       DeviceRoleObjectType,
		Table:      "dcim_devicerole",
		Display:    "name",
		NaturalKey: []string{"name"},
		Fields: []Field{
			{Name: "name", Kind: KindString, Required: true},
			{Name: "slug", Kind: KindString},
			{Name: "color", Kind: KindString, Default: "000000"},
			{Name: "description", Kind: KindString},
		},
		Unique: [][]string{{"name"}, {"slug"}},
	})

	r.add(&Descriptor{
		Type:       DeviceTypeObjectType,
		Table:      "dcim_devicetype",
		Display:    "model",
		NaturalKey: []string{"model"},
		Fields: []Field{
			{Name: "model", Kind: KindString, Required: true},
			{Name: "slug", Kind: KindString},
			{Name: "manufacturer", Kind: KindRef, Required: true, Ref: ManufacturerObjectType},
			{Name: "part_number", Kind: KindString},
			{Name: "description", Kind: KindString},
		},
		Unique: [][]string{{"manufacturer", "model"}, {"manufacturer", "slug"}},
	})

	r.add(&Descriptor{
		Type:       PlatformObjectType,
		Table:      "dcim_platform",
		Display:    "name",
		NaturalKey: []string{"name"},
		Fields: []Field{
			{Name: "name", Kind: KindString, Required: true},
			{Name: "slug", Kind: KindString},
			{Name: "manufacturer", Kind: KindRef, Ref: ManufacturerObjectType},
			{Name: "description", Kind: KindString},
		},
		Unique: [][]string{{"name"}, {"slug"}},
	})

	r.add(&Descriptor{
		Type:       DeviceObjectType,
		Table:      "dcim_device",
		Display:    "name",
		NaturalKey: []string{"name", "site"},
		Fields: []Field{
			{Name: "name", Kind: KindString, Required: true},
			{Name: "site", Kind: KindRef, Required: true, Ref: SiteObjectType},
			{Name: "role", Kind: KindRef, Required: true, Ref: DeviceRoleObjectType},
			{Name: "device_type", Kind: KindRef, Required: true, Ref: DeviceTypeObjectType},
			{Name: "platform", Kind: KindRef, Ref: PlatformObjectType},
			{Name: "serial", Kind: KindString},
			{Name: "status", Kind: KindString, Default: DefaultDeviceStatus},
			{Name: "description", Kind: KindString},
			{Name: "comments", Kind: KindString},
			{Name: "primary_ip4", Kind: KindRef, Ref: IPAddressObjectType},
			{Name: "primary_ip6", Kind: KindRef, Ref: IPAddressObjectType},
		},
		Unique: [][]string{{"name", "site"}},
	})

	r.add(&Descriptor{
		Type:       InterfaceObjectType,
		Table:      "dcim_interface",
		Display:    "name",
		NaturalKey: []string{"name", "device"},
		Fields: []Field{
			{Name: "name", Kind: KindString, Required: true},
			{Name: "device", Kind: KindRef, Required: true, Ref: DeviceObjectType},
			{Name: "type", Kind: KindString, Default: "other"},
			{Name: "enabled", Kind: KindBool, Default: true},
			{Name: "mtu", Kind: KindInt},
			{Name: "mac_address", Kind: KindString},
			{Name: "speed", Kind: KindInt},
			{Name: "description", Kind: KindString},
		},
		Unique: [][]string{{"name", "device"}},
	})

	r.add(&Descriptor{
		Type:       IPAddressObjectType,
		Table:      "ipam_ipaddress",
		Display:    "address",
		NaturalKey: []string{"address"},
		Fields: []Field{
			{Name: "address", Kind: KindString, Required: true},
			{Name: "status", Kind: KindString, Default: DefaultIPAddressStatus},
			{Name: "role", Kind: KindString},
			{Name: "dns_name", Kind: KindString},
			{Name: "description", Kind: KindString},
			{Name: "comments", Kind: KindString},
			{Name: "assigned_object_type", Kind: KindString},
			{Name: "assigned_object_id", Kind: KindInt},
		},
	})

	r.add(&Descriptor{
		Type:       PrefixObjectType,
		Table:      "ipam_prefix",
		Display:    "prefix",
		NaturalKey: []string{"prefix"},
		Fields: []Field{
			{Name: "prefix", Kind: KindString, Required: true},
			{Name: "site", Kind: KindRef, Ref: SiteObjectType},
			{Name: "status", Kind: KindString, Default: DefaultPrefixStatus},
			{Name: "is_pool", Kind: KindBool, Default: false},
			{Name: "mark_utilized", Kind: KindBool, Default: false},
			{Name: "description", Kind: KindString},
			{Name: "comments", Kind: KindString},
		},
		Unique: [][]string{{"prefix"}},
	})

	return r
}

func (r *Registry) add(d *Descriptor) {
	r.byType[d.Type] = d
	r.order = append(r.order, d.Type)
}
