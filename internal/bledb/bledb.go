// Package bledb normalizes BLE UUIDs and maps the ones this tool deals with
// to human-readable names.
package bledb

import "strings"

// sigBaseSuffix is the tail of the Bluetooth SIG base UUID
// (0000xxxx-0000-1000-8000-00805f9b34fb) in normalized form.
const sigBaseSuffix = "00001000800000805f9b34fb"

// DataVersion identifies the revision of the name tables below.
const DataVersion = "2025.10-pixl"

var services = map[string]string{
	"1800":                             "Generic Access",
	"1801":                             "Generic Attribute",
	"1805":                             "Current Time",
	"180a":                             "Device Information",
	"180f":                             "Battery Service",
	"3c0a1000281d4b48b2a7f15579a1c38f": "SYM Pixl",
}

var characteristics = map[string]string{
	"2a00":                             "Device Name",
	"2a01":                             "Appearance",
	"2a05":                             "Service Changed",
	"2a0f":                             "Local Time Information",
	"2a19":                             "Battery Level",
	"2a29":                             "Manufacturer Name String",
	"2a2b":                             "Current Time",
	"3c0a1001281d4b48b2a7f15579a1c38f": "SYM Integer",
	"3c0a1002281d4b48b2a7f15579a1c38f": "SYM Temperature",
	"3c0a1003281d4b48b2a7f15579a1c38f": "SYM Button Click",
}

var descriptors = map[string]string{
	"2901": "Characteristic User Description",
	"2902": "Client Characteristic Configuration",
	"2904": "Characteristic Presentation Format",
}

// NormalizeUUID converts a UUID string to the form used by go-ble's UUID.String():
// lowercase, no dashes, no braces, no 0x prefix. Full 128-bit UUIDs built on the
// Bluetooth SIG base are shortened to their 16-bit form ("0000180d-...-34fb" -> "180d").
func NormalizeUUID(uuid string) string {
	u := strings.ToLower(strings.TrimSpace(uuid))
	u = strings.TrimPrefix(u, "0x")
	u = strings.NewReplacer("-", "", "{", "", "}", "").Replace(u)

	if len(u) == 32 && strings.HasPrefix(u, "0000") && strings.HasSuffix(u, sigBaseSuffix) {
		return u[4:8]
	}
	return u
}

// NormalizeUUIDs normalizes every UUID in the slice.
func NormalizeUUIDs(uuids []string) []string {
	out := make([]string, len(uuids))
	for i, u := range uuids {
		out[i] = NormalizeUUID(u)
	}
	return out
}

// LookupService returns the known name of a service UUID, or "" if unknown.
func LookupService(uuid string) string {
	return services[NormalizeUUID(uuid)]
}

// LookupCharacteristic returns the known name of a characteristic UUID, or "" if unknown.
func LookupCharacteristic(uuid string) string {
	return characteristics[NormalizeUUID(uuid)]
}

// LookupDescriptor returns the known name of a descriptor UUID, or "" if unknown.
func LookupDescriptor(uuid string) string {
	return descriptors[NormalizeUUID(uuid)]
}
