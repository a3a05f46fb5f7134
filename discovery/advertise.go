// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package discovery

import (
	"github.com/google/uuid"
	"github.com/grandcat/zeroconf"

	"github.com/soothill/hue-bridge-emulator/pkg/errors"
	"github.com/soothill/hue-bridge-emulator/pkg/logger"
)

const (
	mdnsServiceType = "_hue._tcp"
	mdnsDomain      = "local."
)

// Advertiser registers the bridge as an mDNS service so clients that browse
// for "_hue._tcp" (newer Hue apps) find it without SSDP.
type Advertiser struct {
	server *zeroconf.Server
}

// txtRecords builds the TXT records the service publishes. The bridge id is
// the same hub id that SSDP responses and the device description advertise.
func txtRecords(bridgeID string) []string {
	return []string{
		"bridgeid=" + HubID(bridgeID),
		"modelid=BSB001",
	}
}

// NewAdvertiser registers the mDNS service and starts answering queries.
// The TXT records mirror what a real bridge publishes: bridge id and model.
func NewAdvertiser(bridgeID string, httpPort int) (*Advertiser, error) {
	instance := "hue-" + uuid.NewString()[:8]

	server, err := zeroconf.Register(instance, mdnsServiceType, mdnsDomain, httpPort, txtRecords(bridgeID), nil)
	if err != nil {
		return nil, errors.NewDiscoveryError("register mdns service", err)
	}

	logger.Info().
		Str("instance", instance).
		Str("service", mdnsServiceType).
		Int("port", httpPort).
		Msg("mDNS service registered")

	return &Advertiser{server: server}, nil
}

// Stop withdraws the mDNS advertisement.
func (a *Advertiser) Stop() {
	if a.server != nil {
		a.server.Shutdown()
	}
	logger.Info().Msg("mDNS advertisement withdrawn")
}
