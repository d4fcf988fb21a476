package util

import (
	"fmt"
	"net"
)

// ParseIPWithMask parses an IP address with CIDR notation
// Returns the IP, mask length, and any error
func ParseIPWithMask(cidr string) (net.IP, int, error) {
	ip, ipNet, err := net.ParseCIDR(cidr)
	if err != nil {
		return nil, 0, fmt.Errorf("invalid CIDR notation: %s", cidr)
	}
	ones, _ := ipNet.Mask.Size()
	return ip, ones, nil
}

// NetworkOf returns the enclosing network of an address in CIDR notation,
// e.g. "10.1.0.5/24" -> "10.1.0.0/24".
func NetworkOf(cidr string) (string, error) {
	_, ipNet, err := net.ParseCIDR(cidr)
	if err != nil {
		return "", fmt.Errorf("invalid CIDR notation: %s", cidr)
	}
	return ipNet.String(), nil
}

// AddrOf returns just the address part of a CIDR string,
// e.g. "10.1.0.5/24" -> "10.1.0.5".
func AddrOf(cidr string) (string, error) {
	ip, _, err := net.ParseCIDR(cidr)
	if err != nil {
		return "", fmt.Errorf("invalid CIDR notation: %s", cidr)
	}
	return ip.String(), nil
}

// FirstHostAddr returns the first host address of the network containing the
// given CIDR address: the network address plus one. The emulated gateway of a
// simulated NIC subnet sits on this address.
func FirstHostAddr(cidr string) (string, error) {
	_, ipNet, err := net.ParseCIDR(cidr)
	if err != nil {
		return "", fmt.Errorf("invalid CIDR notation: %s", cidr)
	}
	ip := ipNet.IP
	if v4 := ip.To4(); v4 != nil {
		ip = v4
	}
	next := make(net.IP, len(ip))
	copy(next, ip)
	for i := len(next) - 1; i >= 0; i-- {
		next[i]++
		if next[i] != 0 {
			break
		}
	}
	return next.String(), nil
}
