package gatt

import "strings"

// Capability is a bit set of GATT characteristic properties.
// Bit positions follow the Characteristic Properties field of the
// characteristic declaration, so values can be mapped 1:1 from any host
// stack's property byte.
type Capability uint8

const (
	CapBroadcast Capability = 1 << iota
	CapRead
	CapWriteNoResponse
	CapWrite
	CapNotify
	CapIndicate
)

var capabilityNames = []struct {
	cap  Capability
	name string
}{
	{CapBroadcast, "broadcast"},
	{CapRead, "read"},
	{CapWriteNoResponse, "write-without-response"},
	{CapWrite, "write"},
	{CapNotify, "notify"},
	{CapIndicate, "indicate"},
}

// Has reports whether all bits of c are present in the set.
func (s Capability) Has(c Capability) bool {
	return s&c == c
}

func (s Capability) String() string {
	if s == 0 {
		return "none"
	}
	parts := make([]string, 0, len(capabilityNames))
	for _, cn := range capabilityNames {
		if s&cn.cap != 0 {
			parts = append(parts, cn.name)
		}
	}
	return strings.Join(parts, ",")
}

// ParseCapabilities converts a comma-separated property list (the format
// used in config files and test fixtures, e.g. "read,notify") to a bit set.
// Unknown names are ignored.
func ParseCapabilities(s string) Capability {
	var out Capability
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(strings.ToLower(part))
		for _, cn := range capabilityNames {
			if part == cn.name {
				out |= cn.cap
			}
		}
	}
	return out
}
