// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package discovery

import (
	"testing"
)

// FuzzParseSearch tests ParseSearch with arbitrary packets
func FuzzParseSearch(f *testing.F) {
	// Seed corpus with known inputs
	f.Add([]byte(validSearch))
	f.Add([]byte("M-SEARCH * HTTP/1.1\r\nMAN: \"ssdp:discover\"\r\nST: ssdp:all\r\n\r\n"))
	f.Add([]byte("M-SEARCH * HTTP/1.1\r\n\r\n"))              // No headers
	f.Add([]byte("NOTIFY * HTTP/1.1\r\n\r\n"))                // Wrong method
	f.Add([]byte("GET / HTTP/1.1\r\nHost: example.com\r\n")) // Plain HTTP
	f.Add([]byte(""))                                         // Empty
	f.Add([]byte("\r\n\r\n"))                                 // Only separators
	f.Add([]byte("M-SEARCH"))                                 // Truncated request line
	f.Add([]byte("M-SEARCH * HTTP/1.1\r\nMAN: ssdp:discover\r\nST: x\r\n\r\n")) // Unquoted MAN
	f.Add([]byte("M-SEARCH * HTTP/1.1\nMAN: \"ssdp:discover\"\nST: x\n\n"))     // LF only
	f.Add([]byte{0x00, 0xFF, 0x7F})                           // Binary garbage

	f.Fuzz(func(t *testing.T, packet []byte) {
		// Must never panic, whatever arrives on the multicast group.
		search, err := ParseSearch(packet)

		// A successful parse must always carry a non-empty target.
		if err == nil && search.Target == "" {
			t.Error("ParseSearch() accepted a search without a target")
		}
	})
}
