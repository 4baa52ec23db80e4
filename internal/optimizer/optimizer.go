// Package optimizer decides how many alternative routes to compute and how
// hard to throttle routing requests for a given client.
package optimizer

import (
	"time"
)

// NetworkSpeed is a coarse network classification.
type NetworkSpeed string

const (
	NetworkFast   NetworkSpeed = "fast"
	NetworkMedium NetworkSpeed = "medium"
	NetworkSlow   NetworkSpeed = "slow"
)

// DeviceClass is a coarse device capability classification.
type DeviceClass string

const (
	DeviceHigh   DeviceClass = "high"
	DeviceMedium DeviceClass = "medium"
	DeviceLow    DeviceClass = "low"
)

const (
	defaultRouteCount = 3
	maxRouteCount     = 5

	// Assumed hardware when the client does not say.
	defaultCPUs     = 4
	defaultMemoryGB = 4
)

// Optimizer classifies a client through its CapabilityProbe.
// It is cheap to build; create one per request.
type Optimizer struct {
	probe CapabilityProbe
}

// New creates an optimizer. A nil probe behaves like a client that reports nothing.
func New(probe CapabilityProbe) *Optimizer {
	if probe == nil {
		probe = StaticProbe{}
	}
	return &Optimizer{probe: probe}
}

// NetworkSpeed classifies the connection from, in order of preference, the
// effective connection type, the downlink estimate, the page load time.
// With no signal at all the network is assumed medium.
func (o *Optimizer) NetworkSpeed() NetworkSpeed {
	n := o.probe.Network()

	switch n.EffectiveType {
	case "slow-2g", "2g":
		return NetworkSlow
	case "3g":
		return NetworkMedium
	case "4g":
		return NetworkFast
	}

	if n.DownlinkMbps > 0 {
		switch {
		case n.DownlinkMbps >= 5:
			return NetworkFast
		case n.DownlinkMbps >= 1.5:
			return NetworkMedium
		default:
			return NetworkSlow
		}
	}

	if n.PageLoad > 0 {
		switch {
		case n.PageLoad < 2*time.Second:
			return NetworkFast
		case n.PageLoad < 5*time.Second:
			return NetworkMedium
		default:
			return NetworkSlow
		}
	}

	return NetworkMedium
}

// DeviceClass classifies the device from CPU count and memory, assuming a
// mid-range device for whatever is unknown.
func (o *Optimizer) DeviceClass() DeviceClass {
	d := o.probe.Device()
	cpus := d.LogicalCPUs
	if cpus <= 0 {
		cpus = defaultCPUs
	}
	mem := d.MemoryGB
	if mem <= 0 {
		mem = defaultMemoryGB
	}

	switch {
	case cpus <= 2 || mem <= 2:
		return DeviceLow
	case cpus >= 8 && mem >= 8:
		return DeviceHigh
	default:
		return DeviceMedium
	}
}

// OptimalRouteCount returns how many routes to compute for availableResults
// destinations. The result is always within [1, 5] and never exceeds
// availableResults when at least one result is available.
func (o *Optimizer) OptimalRouteCount(availableResults int) int {
	count := defaultRouteCount
	switch o.NetworkSpeed() {
	case NetworkFast:
		count = min(maxRouteCount, availableResults)
	case NetworkSlow:
		count = 1
	}

	if o.DeviceClass() == DeviceLow {
		count--
	}

	count = min(count, availableResults)
	return max(1, min(count, maxRouteCount))
}

// ShouldLimitConcurrentRequests reports whether route fetches should be serialized.
func (o *Optimizer) ShouldLimitConcurrentRequests() bool {
	return o.NetworkSpeed() == NetworkSlow || o.DeviceClass() == DeviceLow
}

// RequestDelay is the pause to insert between serialized route fetches.
func (o *Optimizer) RequestDelay() time.Duration {
	switch o.NetworkSpeed() {
	case NetworkFast:
		return 0
	case NetworkSlow:
		return 500 * time.Millisecond
	default:
		return 200 * time.Millisecond
	}
}

// Profile is a serializable summary of the optimizer's view of a client.
type Profile struct {
	Network          NetworkSpeed `json:"network"`
	Device           DeviceClass  `json:"device"`
	LimitConcurrency bool         `json:"limit_concurrency"`
	RequestDelayMs   int64        `json:"request_delay_ms"`
	SampleRouteCount int          `json:"route_count_for_5_results"`
}

// Profile summarizes the classification.
func (o *Optimizer) Profile() Profile {
	return Profile{
		Network:          o.NetworkSpeed(),
		Device:           o.DeviceClass(),
		LimitConcurrency: o.ShouldLimitConcurrentRequests(),
		RequestDelayMs:   o.RequestDelay().Milliseconds(),
		SampleRouteCount: o.OptimalRouteCount(5),
	}
}
