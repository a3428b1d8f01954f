package session

// UUIDs of the fixed peripheral contract, in the normalized form link.Database uses.
const (
	CurrentTimeServiceUUID = "1805"
	CurrentTimeCharUUID    = "2a2b"

	VendorServiceUUID   = "3c0a1000281d4b48b2a7f15579a1c38f"
	IntegerCharUUID     = "3c0a1001281d4b48b2a7f15579a1c38f"
	TemperatureCharUUID = "3c0a1002281d4b48b2a7f15579a1c38f"
	ButtonClickCharUUID = "3c0a1003281d4b48b2a7f15579a1c38f"
)
