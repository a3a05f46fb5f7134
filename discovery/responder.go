// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

// Package discovery makes the virtual bridge discoverable on the local network.
//
// The primary mechanism is SSDP (Simple Service Discovery Protocol): the
// responder joins the UPnP multicast group and answers M-SEARCH queries the
// way a first-generation Philips Hue bridge does, so Echo devices and Hue
// apps scanning the network find it. A zeroconf advertiser additionally
// registers the bridge as a "_hue._tcp" mDNS service.
//
// # SSDP Protocol
//
// Clients multicast an HTTP-over-UDP search to 239.255.255.250:1900:
//
//	M-SEARCH * HTTP/1.1
//	HOST: 239.255.255.250:1900
//	MAN: "ssdp:discover"
//	MX: 3
//	ST: upnp:rootdevice
//
// A valid search names the M-SEARCH method, carries the quoted
// "ssdp:discover" MAN header, and a non-empty ST (search target). Anything
// else arriving on the multicast group is dropped without a reply.
//
// # Response Behavior
//
// Each valid search gets three unicast responses, one per search target the
// bridge claims (root device, device UUID, basic device URN), spaced roughly
// 100ms apart after an initial delay. The stagger mimics the real bridge and
// keeps bursts of concurrent clients from colliding. The LOCATION header
// points at the device description endpoint using the source address of the
// interface facing the client, resolved per destination at send time, so
// multi-homed hosts always advertise a reachable URL.
package discovery

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"net"
	"net/textproto"
	"strings"
	"sync"
	"time"

	"github.com/soothill/hue-bridge-emulator/pkg/errors"
	"github.com/soothill/hue-bridge-emulator/pkg/logger"
	"github.com/soothill/hue-bridge-emulator/pkg/metrics"
	"github.com/soothill/hue-bridge-emulator/registry"
)

const (
	multicastAddress = "239.255.255.250:1900"
	serverHeader     = "Linux/3.14.0 UPnP/1.0 IpBridge/1.17.0"
	cacheMaxAge      = 100

	responseBaseDelay = 1600 * time.Millisecond
	responseStep      = 100 * time.Millisecond

	maxPacketSize = 1024

	hubIDPrefix = "00112233-4455-6677-8899-"

	searchTargetRoot  = "upnp:rootdevice"
	searchTargetBasic = "urn:schemas-upnp-org:device:basic:1"
)

// HubID derives the UUID-shaped identifier the bridge advertises from the
// configured bridge id.
func HubID(bridgeID string) string {
	return hubIDPrefix + registry.NormalizeID(bridgeID)
}

// SearchRequest is a parsed, validated M-SEARCH query.
type SearchRequest struct {
	Target string // ST header value
	MX     string // MX header value, informational only
}

// Responder answers SSDP search queries for the virtual bridge.
type Responder struct {
	hubID    string
	httpPort int

	conn   *net.UDPConn
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewResponder creates an SSDP responder for the given bridge identity.
func NewResponder(bridgeID string, httpPort int) *Responder {
	return &Responder{
		hubID:    HubID(bridgeID),
		httpPort: httpPort,
	}
}

// Start joins the SSDP multicast group and begins answering searches.
// It returns once the socket is bound; responses are sent from background
// goroutines until Stop is called or the context is cancelled.
func (r *Responder) Start(ctx context.Context) error {
	addr, err := net.ResolveUDPAddr("udp4", multicastAddress)
	if err != nil {
		return errors.NewNetworkError("resolve multicast address", multicastAddress, err)
	}

	conn, err := net.ListenMulticastUDP("udp4", nil, addr)
	if err != nil {
		return errors.NewNetworkError("join multicast group", multicastAddress, err)
	}

	if err := conn.SetReadBuffer(maxPacketSize); err != nil {
		logger.Warn().Err(err).Msg("Failed to set multicast read buffer")
	}

	ctx, r.cancel = context.WithCancel(ctx)
	r.conn = conn

	logger.Info().
		Str("group", multicastAddress).
		Str("hub_id", r.hubID).
		Int("http_port", r.httpPort).
		Msg("SSDP responder listening")

	r.wg.Add(1)
	go r.listen(ctx)

	return nil
}

// Stop shuts the responder down and waits for pending responses to drain.
// Responses not yet sent are abandoned.
func (r *Responder) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	if r.conn != nil {
		_ = r.conn.Close()
	}
	r.wg.Wait()
	logger.Info().Msg("SSDP responder stopped")
}

// listen reads multicast packets and schedules responses for valid searches.
func (r *Responder) listen(ctx context.Context) {
	defer r.wg.Done()

	buf := make([]byte, maxPacketSize)
	for {
		n, src, err := r.conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Warn().Err(err).Msg("SSDP read error")
			continue
		}

		search, err := ParseSearch(buf[:n])
		if err != nil {
			metrics.InvalidSearchRequests.Inc()
			logger.Debug().Err(err).Str("source", src.String()).Msg("Dropped discovery packet")
			continue
		}

		metrics.SearchRequestsTotal.Inc()
		logger.Debug().
			Str("source", src.String()).
			Str("search_target", search.Target).
			Msg("Received SSDP search")

		r.scheduleResponses(ctx, src)
	}
}

// ParseSearch validates a discovery packet as an SSDP M-SEARCH query.
// A valid search uses the M-SEARCH method, carries MAN "ssdp:discover"
// (quotes required per UPnP) and names a non-empty search target.
func ParseSearch(packet []byte) (*SearchRequest, error) {
	reader := textproto.NewReader(bufio.NewReader(bytes.NewReader(packet)))

	requestLine, err := reader.ReadLine()
	if err != nil {
		return nil, errors.ErrInvalidSearch
	}

	fields := strings.Fields(requestLine)
	if len(fields) < 3 || fields[0] != "M-SEARCH" || fields[1] != "*" {
		return nil, errors.ErrInvalidSearch
	}

	headers, err := reader.ReadMIMEHeader()
	if err != nil {
		return nil, errors.ErrInvalidSearch
	}

	if headers.Get("Man") != `"ssdp:discover"` {
		return nil, errors.ErrInvalidSearch
	}

	target := headers.Get("St")
	if target == "" {
		return nil, errors.ErrInvalidSearch
	}

	return &SearchRequest{
		Target: target,
		MX:     headers.Get("Mx"),
	}, nil
}

// scheduleResponses queues the three unicast responses for one search.
// Each response runs on its own timer so a shutdown abandons whatever has
// not been sent yet.
func (r *Responder) scheduleResponses(ctx context.Context, dst *net.UDPAddr) {
	targets := []string{
		searchTargetRoot,
		"uuid:" + r.hubID,
		searchTargetBasic,
	}

	for i, target := range targets {
		delay := responseBaseDelay + time.Duration(i+1)*responseStep

		r.wg.Add(1)
		go func(target string, delay time.Duration) {
			defer r.wg.Done()

			timer := time.NewTimer(delay)
			defer timer.Stop()

			select {
			case <-ctx.Done():
				return
			case <-timer.C:
			}

			if err := r.respond(dst, target); err != nil {
				logger.Warn().Err(err).Str("destination", dst.String()).Msg("Failed to send SSDP response")
				return
			}

			metrics.SearchResponsesTotal.Inc()
			metrics.SearchResponseDelay.Observe(delay.Seconds())
		}(target, delay)
	}
}

// respond sends one unicast response for a search target.
func (r *Responder) respond(dst *net.UDPAddr, target string) error {
	ip, err := r.localIPFor(dst)
	if err != nil {
		return err
	}

	response := r.buildResponse(target, ip)

	conn, err := net.DialUDP("udp4", nil, dst)
	if err != nil {
		return errors.NewNetworkError("dial response socket", dst.String(), err)
	}
	defer func() {
		_ = conn.Close()
	}()

	if _, err := conn.Write([]byte(response)); err != nil {
		return errors.NewNetworkError("send response", dst.String(), err)
	}

	logger.Debug().
		Str("destination", dst.String()).
		Str("search_target", target).
		Msg("Sent SSDP response")

	return nil
}

// buildResponse renders the HTTP-over-UDP response for one search target.
// USN is always the device UUID, matching the bridge's advertisement scheme.
func (r *Responder) buildResponse(target string, ip net.IP) string {
	var b strings.Builder
	b.WriteString("HTTP/1.1 200 OK\r\n")
	b.WriteString(fmt.Sprintf("HOST: %s\r\n", multicastAddress))
	b.WriteString(fmt.Sprintf("CACHE-CONTROL: max-age=%d\r\n", cacheMaxAge))
	b.WriteString("EXT:\r\n")
	b.WriteString(fmt.Sprintf("LOCATION: http://%s:%d/description.xml\r\n", ip.String(), r.httpPort))
	b.WriteString(fmt.Sprintf("SERVER: %s\r\n", serverHeader))
	b.WriteString(fmt.Sprintf("ST: %s\r\n", target))
	b.WriteString(fmt.Sprintf("USN: uuid:%s\r\n", r.hubID))
	b.WriteString("\r\n")
	return b.String()
}

// localIPFor resolves the local address that routes to the destination.
// No packet is sent; the connected socket just exposes the kernel's
// route selection.
func (r *Responder) localIPFor(dst *net.UDPAddr) (net.IP, error) {
	conn, err := net.Dial("udp4", dst.String())
	if err != nil {
		return nil, errors.NewNetworkError("resolve local address", dst.String(), err)
	}
	defer func() {
		_ = conn.Close()
	}()

	local, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		return nil, errors.NewNetworkError("resolve local address", dst.String(), fmt.Errorf("unexpected address type %T", conn.LocalAddr()))
	}
	return local.IP, nil
}
