package optimizer

import (
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// NetworkInfo describes the client's connection. Zero fields are unknown.
type NetworkInfo struct {
	// EffectiveType is the Network Information API class: slow-2g, 2g, 3g or 4g
	EffectiveType string
	// DownlinkMbps is the estimated downlink bandwidth
	DownlinkMbps float64
	// PageLoad is how long the client's page took to load
	PageLoad time.Duration
}

// DeviceInfo describes the client's hardware. Zero fields are unknown.
type DeviceInfo struct {
	LogicalCPUs int
	MemoryGB    float64
}

// CapabilityProbe reports what is known about the client's network and device.
type CapabilityProbe interface {
	Network() NetworkInfo
	Device() DeviceInfo
}

// StaticProbe returns fixed values. Useful as a test fake and for server-side callers.
type StaticProbe struct {
	Net NetworkInfo
	Dev DeviceInfo
}

// Network implements CapabilityProbe.
func (p StaticProbe) Network() NetworkInfo { return p.Net }

// Device implements CapabilityProbe.
func (p StaticProbe) Device() DeviceInfo { return p.Dev }

// Client hint headers read by HintsProbe.
const (
	HeaderECT                 = "ECT"
	HeaderDownlink            = "Downlink"
	HeaderDeviceMemory        = "Device-Memory"
	HeaderHardwareConcurrency = "X-Hardware-Concurrency"
	HeaderPageLoadMs          = "X-Page-Load-Ms"
)

// HintsProbe is the default probe. It reads the client hints a map client
// sends with its requests; missing or malformed hints are left unknown.
type HintsProbe struct {
	net NetworkInfo
	dev DeviceInfo
}

// NewHintsProbe parses client hints from request headers.
func NewHintsProbe(h http.Header) *HintsProbe {
	p := &HintsProbe{}
	p.net.EffectiveType = strings.ToLower(strings.TrimSpace(h.Get(HeaderECT)))
	p.net.DownlinkMbps = parsePositive(h.Get(HeaderDownlink))
	if ms := parsePositive(h.Get(HeaderPageLoadMs)); ms > 0 {
		p.net.PageLoad = time.Duration(ms * float64(time.Millisecond))
	}
	p.dev.MemoryGB = parsePositive(h.Get(HeaderDeviceMemory))
	if cpus := parsePositive(h.Get(HeaderHardwareConcurrency)); cpus >= 1 {
		p.dev.LogicalCPUs = int(cpus)
	}
	return p
}

// Network implements CapabilityProbe.
func (p *HintsProbe) Network() NetworkInfo { return p.net }

// Device implements CapabilityProbe.
func (p *HintsProbe) Device() DeviceInfo { return p.dev }

func parsePositive(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
		return 0
	}
	return v
}
