// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package discovery

import (
	"context"
	"net"
	"strings"
	"testing"
	"time"
)

const validSearch = "M-SEARCH * HTTP/1.1\r\n" +
	"HOST: 239.255.255.250:1900\r\n" +
	"MAN: \"ssdp:discover\"\r\n" +
	"MX: 3\r\n" +
	"ST: upnp:rootdevice\r\n" +
	"\r\n"

func TestHubID(t *testing.T) {
	tests := []struct {
		name     string
		bridgeID string
		want     string
	}{
		{"plain id", "abcdef123456", "00112233-4455-6677-8899-abcdef123456"},
		{"dotted id", "8f2b4c1d.3a9e02", "00112233-4455-6677-8899-8f2b4c1d3a9e02"},
		{"whitespace trimmed", " abc ", "00112233-4455-6677-8899-abc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HubID(tt.bridgeID); got != tt.want {
				t.Errorf("HubID(%q) = %q, want %q", tt.bridgeID, got, tt.want)
			}
		})
	}
}

func TestParseSearch(t *testing.T) {
	tests := []struct {
		name    string
		packet  string
		wantErr bool
		wantST  string
	}{
		{
			name:   "valid search",
			packet: validSearch,
			wantST: "upnp:rootdevice",
		},
		{
			name: "valid search for device uuid",
			packet: "M-SEARCH * HTTP/1.1\r\n" +
				"MAN: \"ssdp:discover\"\r\n" +
				"ST: uuid:00112233-4455-6677-8899-abc\r\n\r\n",
			wantST: "uuid:00112233-4455-6677-8899-abc",
		},
		{
			name: "missing ST",
			packet: "M-SEARCH * HTTP/1.1\r\n" +
				"MAN: \"ssdp:discover\"\r\n\r\n",
			wantErr: true,
		},
		{
			name: "missing MAN",
			packet: "M-SEARCH * HTTP/1.1\r\n" +
				"ST: upnp:rootdevice\r\n\r\n",
			wantErr: true,
		},
		{
			name: "unquoted MAN",
			packet: "M-SEARCH * HTTP/1.1\r\n" +
				"MAN: ssdp:discover\r\n" +
				"ST: upnp:rootdevice\r\n\r\n",
			wantErr: true,
		},
		{
			name: "NOTIFY is not a search",
			packet: "NOTIFY * HTTP/1.1\r\n" +
				"MAN: \"ssdp:discover\"\r\n" +
				"ST: upnp:rootdevice\r\n\r\n",
			wantErr: true,
		},
		{
			name:    "empty packet",
			packet:  "",
			wantErr: true,
		},
		{
			name:    "garbage",
			packet:  "\x00\x01\x02 not http at all",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			search, err := ParseSearch([]byte(tt.packet))
			if tt.wantErr {
				if err == nil {
					t.Fatal("ParseSearch() should have failed")
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseSearch() error = %v", err)
			}
			if search.Target != tt.wantST {
				t.Errorf("Target = %q, want %q", search.Target, tt.wantST)
			}
		})
	}
}

func TestBuildResponse(t *testing.T) {
	r := NewResponder("abc123", 8080)
	response := r.buildResponse("upnp:rootdevice", net.ParseIP("192.168.1.50"))

	wantLines := []string{
		"HTTP/1.1 200 OK",
		"HOST: 239.255.255.250:1900",
		"CACHE-CONTROL: max-age=100",
		"EXT:",
		"LOCATION: http://192.168.1.50:8080/description.xml",
		"SERVER: Linux/3.14.0 UPnP/1.0 IpBridge/1.17.0",
		"ST: upnp:rootdevice",
		"USN: uuid:00112233-4455-6677-8899-abc123",
	}
	for _, line := range wantLines {
		if !strings.Contains(response, line+"\r\n") {
			t.Errorf("response missing line %q:\n%s", line, response)
		}
	}

	if !strings.HasSuffix(response, "\r\n\r\n") {
		t.Error("response must end with a blank line")
	}
}

func TestScheduleResponses(t *testing.T) {
	// Listen on loopback and pose as the searching client.
	client, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("failed to bind client socket: %v", err)
	}
	defer func() {
		_ = client.Close()
	}()

	r := NewResponder("abc123", 8080)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := time.Now()
	r.scheduleResponses(ctx, client.LocalAddr().(*net.UDPAddr))

	seenTargets := make(map[string]bool)
	var lastArrival time.Time

	buf := make([]byte, 2048)
	for i := 0; i < 3; i++ {
		if err := client.SetReadDeadline(time.Now().Add(5 * time.Second)); err != nil {
			t.Fatalf("failed to set deadline: %v", err)
		}
		n, _, err := client.ReadFromUDP(buf)
		if err != nil {
			t.Fatalf("response %d not received: %v", i+1, err)
		}

		response := string(buf[:n])
		arrival := time.Now()

		if arrival.Sub(received) < 1600*time.Millisecond {
			t.Errorf("response %d arrived after %v, want at least 1.6s", i+1, arrival.Sub(received))
		}
		if !lastArrival.IsZero() && arrival.Before(lastArrival) {
			t.Error("responses arrived out of schedule")
		}
		lastArrival = arrival

		for _, line := range strings.Split(response, "\r\n") {
			if strings.HasPrefix(line, "ST: ") {
				seenTargets[strings.TrimPrefix(line, "ST: ")] = true
			}
		}
		if !strings.Contains(response, "USN: uuid:00112233-4455-6677-8899-abc123\r\n") {
			t.Errorf("response %d has wrong USN:\n%s", i+1, response)
		}
	}

	for _, want := range []string{"upnp:rootdevice", "uuid:00112233-4455-6677-8899-abc123", "urn:schemas-upnp-org:device:basic:1"} {
		if !seenTargets[want] {
			t.Errorf("no response carried ST %q (got %v)", want, seenTargets)
		}
	}

	r.wg.Wait()
}

func TestScheduleResponsesAbandonedOnCancel(t *testing.T) {
	client, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("failed to bind client socket: %v", err)
	}
	defer func() {
		_ = client.Close()
	}()

	r := NewResponder("abc123", 8080)
	ctx, cancel := context.WithCancel(context.Background())

	r.scheduleResponses(ctx, client.LocalAddr().(*net.UDPAddr))
	cancel()
	r.wg.Wait()

	if err := client.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatalf("failed to set deadline: %v", err)
	}
	buf := make([]byte, 2048)
	if n, _, err := client.ReadFromUDP(buf); err == nil {
		t.Errorf("received %d bytes after cancellation, want none", n)
	}
}
