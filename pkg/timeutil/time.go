package timeutil

import "time"

// GatewayTimestampLayout is the YYYYMMDDHHmmss layout Daraja uses for request
// timestamps and callback TransactionDate values.
const GatewayTimestampLayout = "20060102150405"

// EAT is East Africa Time (UTC+3, no daylight saving). Daraja interprets
// timestamps in this zone.
var EAT = time.FixedZone("EAT", 3*60*60)

// Clock abstracts the wall clock so retention windows can be tested
type Clock interface {
	Now() time.Time
}

// SystemClock reads the real clock in UTC
type SystemClock struct{}

// Now implements Clock
func (SystemClock) Now() time.Time {
	return Now()
}

// Now returns the current time in UTC
// Always use this instead of time.Now() to ensure timezone consistency
func Now() time.Time {
	return time.Now().UTC()
}

// GatewayTimestamp formats t as a Daraja request timestamp in East Africa Time
func GatewayTimestamp(t time.Time) string {
	return t.In(EAT).Format(GatewayTimestampLayout)
}

// ParseGatewayTimestamp parses a Daraja YYYYMMDDHHmmss value (EAT) and returns UTC
func ParseGatewayTimestamp(value string) (time.Time, error) {
	t, err := time.ParseInLocation(GatewayTimestampLayout, value, EAT)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
