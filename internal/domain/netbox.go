package domain

// Object type names as they appear on the wire, namespaced "app.model".
const (
	SiteObjectType         = "dcim.site"
	ManufacturerObjectType = "dcim.manufacturer"
	DeviceRoleObjectType   = "dcim.devicerole"
	DeviceTypeObjectType   = "dcim.devicetype"
	PlatformObjectType     = "dcim.platform"
	DeviceObjectType       = "dcim.device"
	InterfaceObjectType    = "dcim.interface"
	IPAddressObjectType    = "ipam.ipaddress"
	PrefixObjectType       = "ipam.prefix"
)

// Change types accepted in a change set
const (
	ChangeTypeCreate = "create"
	ChangeTypeUpdate = "update"
)

// Default statuses applied when the caller omits them
const (
	DefaultSiteStatus      = "active"
	DefaultDeviceStatus    = "active"
	DefaultIPAddressStatus = "active"
	DefaultPrefixStatus    = "active"
)
