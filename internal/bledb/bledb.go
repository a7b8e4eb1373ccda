// Package bledb resolves Bluetooth SIG assigned numbers to human-readable
// names for display. The tables cover the services, characteristics, and
// company identifiers commonly seen on consumer peripherals; unknown UUIDs
// resolve to the empty string and callers fall back to the raw UUID.
package bledb

import "strings"

// baseUUIDSuffix is the tail of the Bluetooth Base UUID; 16-bit assigned
// numbers expand to 0000xxxx-0000-1000-8000-00805f9b34fb.
const baseUUIDSuffix = "00001000800000805f9b34fb"

var serviceNames = map[string]string{
	"1800": "Generic Access",
	"1801": "Generic Attribute",
	"1802": "Immediate Alert",
	"1803": "Link Loss",
	"1804": "Tx Power",
	"180a": "Device Information",
	"180d": "Heart Rate",
	"180e": "Phone Alert Status",
	"180f": "Battery Service",
	"1810": "Blood Pressure",
	"1811": "Alert Notification",
	"1812": "Human Interface Device",
	"1816": "Cycling Speed and Cadence",
	"1819": "Location and Navigation",
	"181a": "Environmental Sensing",
	"1826": "Fitness Machine",
	"fd6f": "Exposure Notification",
	"fe9f": "Google Fast Pair",
}

var characteristicNames = map[string]string{
	"2a00": "Device Name",
	"2a01": "Appearance",
	"2a05": "Service Changed",
	"2a06": "Alert Level",
	"2a19": "Battery Level",
	"2a23": "System ID",
	"2a24": "Model Number String",
	"2a25": "Serial Number String",
	"2a26": "Firmware Revision String",
	"2a27": "Hardware Revision String",
	"2a28": "Software Revision String",
	"2a29": "Manufacturer Name String",
	"2a37": "Heart Rate Measurement",
	"2a38": "Body Sensor Location",
	"2a39": "Heart Rate Control Point",
	"2a6e": "Temperature",
	"2a6f": "Humidity",
}

var companyNames = map[uint16]string{
	0x0006: "Microsoft",
	0x004c: "Apple",
	0x0059: "Nordic Semiconductor",
	0x0075: "Samsung Electronics",
	0x0087: "Garmin",
	0x00e0: "Google",
}

// normalize reduces any UUID form to the lowercase 16-bit short form when
// the UUID is a SIG assigned number, or the full lowercase dashless form
// otherwise.
func normalize(uuid string) string {
	u := strings.ToLower(strings.ReplaceAll(uuid, "-", ""))
	if len(u) == 32 && strings.HasPrefix(u, "0000") && strings.HasSuffix(u, baseUUIDSuffix) {
		return u[4:8]
	}
	return u
}

// LookupService returns the assigned-number name for a service UUID, or "".
func LookupService(uuid string) string {
	return serviceNames[normalize(uuid)]
}

// LookupCharacteristic returns the assigned-number name for a
// characteristic UUID, or "".
func LookupCharacteristic(uuid string) string {
	return characteristicNames[normalize(uuid)]
}

// LookupCompany returns the member name for a manufacturer-data company
// identifier, or "".
func LookupCompany(id uint16) string {
	return companyNames[id]
}
