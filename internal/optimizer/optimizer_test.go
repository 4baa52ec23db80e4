package optimizer

import (
	"net/http"
	"testing"
	"time"
)

var (
	fastNet   = NetworkInfo{EffectiveType: "4g"}
	mediumNet = NetworkInfo{EffectiveType: "3g"}
	slowNet   = NetworkInfo{EffectiveType: "2g"}

	highDev = DeviceInfo{LogicalCPUs: 8, MemoryGB: 8}
	midDev  = DeviceInfo{LogicalCPUs: 4, MemoryGB: 4}
	lowDev  = DeviceInfo{LogicalCPUs: 2, MemoryGB: 1}
)

func TestNetworkSpeed(t *testing.T) {
	tests := []struct {
		name string
		net  NetworkInfo
		want NetworkSpeed
	}{
		{"4g", NetworkInfo{EffectiveType: "4g"}, NetworkFast},
		{"3g", NetworkInfo{EffectiveType: "3g"}, NetworkMedium},
		{"2g", NetworkInfo{EffectiveType: "2g"}, NetworkSlow},
		{"slow-2g", NetworkInfo{EffectiveType: "slow-2g"}, NetworkSlow},
		{"effective type wins over downlink", NetworkInfo{EffectiveType: "2g", DownlinkMbps: 50}, NetworkSlow},
		{"downlink fast", NetworkInfo{DownlinkMbps: 10}, NetworkFast},
		{"downlink medium", NetworkInfo{DownlinkMbps: 2}, NetworkMedium},
		{"downlink slow", NetworkInfo{DownlinkMbps: 0.4}, NetworkSlow},
		{"page load fast", NetworkInfo{PageLoad: time.Second}, NetworkFast},
		{"page load medium", NetworkInfo{PageLoad: 3 * time.Second}, NetworkMedium},
		{"page load slow", NetworkInfo{PageLoad: 8 * time.Second}, NetworkSlow},
		{"unknown type falls through", NetworkInfo{EffectiveType: "5g", DownlinkMbps: 10}, NetworkFast},
		{"no signal defaults to medium", NetworkInfo{}, NetworkMedium},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := New(StaticProbe{Net: tt.net})
			if got := o.NetworkSpeed(); got != tt.want {
				t.Errorf("NetworkSpeed() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDeviceClass(t *testing.T) {
	tests := []struct {
		name string
		dev  DeviceInfo
		want DeviceClass
	}{
		{"high", highDev, DeviceHigh},
		{"medium", midDev, DeviceMedium},
		{"low cpu", DeviceInfo{LogicalCPUs: 2, MemoryGB: 16}, DeviceLow},
		{"low memory", DeviceInfo{LogicalCPUs: 16, MemoryGB: 1}, DeviceLow},
		{"unknown defaults to medium", DeviceInfo{}, DeviceMedium},
		{"only cpus known", DeviceInfo{LogicalCPUs: 12}, DeviceMedium},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := New(StaticProbe{Dev: tt.dev})
			if got := o.DeviceClass(); got != tt.want {
				t.Errorf("DeviceClass() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestOptimalRouteCount(t *testing.T) {
	tests := []struct {
		name      string
		net       NetworkInfo
		dev       DeviceInfo
		available int
		want      int
	}{
		{"medium default", mediumNet, midDev, 10, 3},
		{"fast allows five", fastNet, highDev, 10, 5},
		{"fast limited by results", fastNet, highDev, 4, 4},
		{"slow forces one", slowNet, highDev, 10, 1},
		{"slow and low device stays at one", slowNet, lowDev, 10, 1},
		{"low device subtracts one", mediumNet, lowDev, 10, 2},
		{"fast low device", fastNet, lowDev, 10, 4},
		{"medium limited by results", mediumNet, midDev, 2, 2},
		{"single result", fastNet, highDev, 1, 1},
		{"zero results still returns one", mediumNet, midDev, 0, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := New(StaticProbe{Net: tt.net, Dev: tt.dev})
			if got := o.OptimalRouteCount(tt.available); got != tt.want {
				t.Errorf("OptimalRouteCount(%d) = %d, want %d", tt.available, got, tt.want)
			}
		})
	}
}

func TestOptimalRouteCount_NeverExceedsAvailable(t *testing.T) {
	nets := []NetworkInfo{fastNet, mediumNet, slowNet, {}}
	devs := []DeviceInfo{highDev, midDev, lowDev, {}}
	for _, n := range nets {
		for _, d := range devs {
			o := New(StaticProbe{Net: n, Dev: d})
			if got := o.OptimalRouteCount(2); got > 2 || got < 1 {
				t.Errorf("net=%+v dev=%+v: OptimalRouteCount(2) = %d", n, d, got)
			}
			for avail := 1; avail <= 12; avail++ {
				got := o.OptimalRouteCount(avail)
				if got < 1 || got > 5 || got > avail {
					t.Errorf("net=%+v dev=%+v: OptimalRouteCount(%d) = %d out of bounds", n, d, avail, got)
				}
			}
		}
	}
}

func TestThrottling(t *testing.T) {
	tests := []struct {
		name      string
		net       NetworkInfo
		dev       DeviceInfo
		wantLimit bool
		wantDelay time.Duration
	}{
		{"fast high", fastNet, highDev, false, 0},
		{"medium", mediumNet, midDev, false, 200 * time.Millisecond},
		{"slow", slowNet, highDev, true, 500 * time.Millisecond},
		{"fast but low-end device", fastNet, lowDev, true, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := New(StaticProbe{Net: tt.net, Dev: tt.dev})
			if got := o.ShouldLimitConcurrentRequests(); got != tt.wantLimit {
				t.Errorf("ShouldLimitConcurrentRequests() = %v, want %v", got, tt.wantLimit)
			}
			if got := o.RequestDelay(); got != tt.wantDelay {
				t.Errorf("RequestDelay() = %v, want %v", got, tt.wantDelay)
			}
		})
	}
}

func TestNilProbe(t *testing.T) {
	o := New(nil)
	if o.NetworkSpeed() != NetworkMedium || o.DeviceClass() != DeviceMedium {
		t.Errorf("nil probe should classify as medium/medium, got %v/%v", o.NetworkSpeed(), o.DeviceClass())
	}
}

func TestHintsProbe(t *testing.T) {
	h := http.Header{}
	h.Set(HeaderECT, " 4G ")
	h.Set(HeaderDownlink, "12.5")
	h.Set(HeaderDeviceMemory, "0.5")
	h.Set(HeaderHardwareConcurrency, "6")
	h.Set(HeaderPageLoadMs, "abc")

	p := NewHintsProbe(h)
	n, d := p.Network(), p.Device()

	if n.EffectiveType != "4g" {
		t.Errorf("EffectiveType = %q, want 4g", n.EffectiveType)
	}
	if n.DownlinkMbps != 12.5 {
		t.Errorf("DownlinkMbps = %v, want 12.5", n.DownlinkMbps)
	}
	if n.PageLoad != 0 {
		t.Errorf("malformed page load should be unknown, got %v", n.PageLoad)
	}
	if d.MemoryGB != 0.5 || d.LogicalCPUs != 6 {
		t.Errorf("device = %+v", d)
	}

	o := New(p)
	if o.DeviceClass() != DeviceLow {
		t.Errorf("0.5GB device should be low, got %v", o.DeviceClass())
	}
}

func TestHintsProbe_Empty(t *testing.T) {
	p := NewHintsProbe(http.Header{})
	if p.Network() != (NetworkInfo{}) || p.Device() != (DeviceInfo{}) {
		t.Errorf("empty headers should produce an unknown probe: %+v %+v", p.Network(), p.Device())
	}
}
