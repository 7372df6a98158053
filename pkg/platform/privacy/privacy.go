// Package privacy reduces personal identifiers before they reach logs.
// Audit records keep full values; logs never should.
package privacy

import (
	"net/netip"
)

// AnonymizeIP keeps the network part of an address: /24 for IPv4 and /48
// for IPv6. It returns "unknown" for empty input and "invalid" when the
// address does not parse.
func AnonymizeIP(ip string) string {
	if ip == "" || ip == "unknown" {
		return "unknown"
	}
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return "invalid"
	}
	addr = addr.Unmap()
	bits := 48
	if addr.Is4() {
		bits = 24
	}
	prefix, err := addr.Prefix(bits)
	if err != nil {
		return "invalid"
	}
	return prefix.Addr().String()
}

// MaskPhone keeps a leading '+' and the last four digits.
func MaskPhone(phone string) string {
	if len(phone) <= 4 {
		return "****"
	}
	masked := []byte(phone)
	for i := 0; i < len(masked)-4; i++ {
		if masked[i] != '+' {
			masked[i] = '*'
		}
	}
	return string(masked)
}
