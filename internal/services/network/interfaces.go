// Package network derives broadcast addresses and subnet prefixes from the
// local IPv4 interfaces, for Art-Net output auto-detection.
package network

import (
	"fmt"
	"net"
	"strings"
)

// Option is one candidate network for Art-Net traffic.
type Option struct {
	Interface string
	Address   string
	Broadcast string
	Prefix    string // first three octets, "" when the mask is not a /24 or wider
}

// Broadcast computes the IPv4 directed broadcast address for ip under mask.
// Returns nil for non-IPv4 input.
func Broadcast(ip net.IP, mask net.IPMask) net.IP {
	ip4 := ip.To4()
	if ip4 == nil || mask == nil {
		return nil
	}
	if len(mask) == 16 {
		mask = mask[12:16]
	}
	if len(mask) != 4 {
		return nil
	}

	out := make(net.IP, 4)
	for i := 0; i < 4; i++ {
		out[i] = ip4[i] | ^mask[i]
	}
	return out
}

// SubnetPrefix returns the first three octets of addr ("10.0.0" for
// "10.0.0.5"), the shape used by the simulated broadcast fan-out.
func SubnetPrefix(addr string) (string, error) {
	ip := net.ParseIP(addr)
	if ip == nil || ip.To4() == nil {
		return "", fmt.Errorf("not an IPv4 address: %q", addr)
	}
	parts := strings.Split(ip.To4().String(), ".")
	return strings.Join(parts[:3], "."), nil
}

// Options enumerates the usable IPv4 networks: up, non-loopback interfaces
// with an address whose broadcast differs from the address itself.
func Options() ([]Option, error) {
	interfaces, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate network interfaces: %w", err)
	}

	var out []Option
	for _, iface := range interfaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}

		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			ipNet, ok := addr.(*net.IPNet)
			if !ok {
				continue
			}
			ip4 := ipNet.IP.To4()
			if ip4 == nil {
				continue
			}

			bcast := Broadcast(ip4, ipNet.Mask)
			if bcast == nil || bcast.Equal(ip4) {
				continue // point-to-point
			}

			opt := Option{
				Interface: iface.Name,
				Address:   ip4.String(),
				Broadcast: bcast.String(),
			}
			if ones, bits := ipNet.Mask.Size(); bits == 32 && ones >= 24 {
				// A /24 or narrower fits the {prefix}.1-254 fan-out.
				if prefix, err := SubnetPrefix(ip4.String()); err == nil {
					opt.Prefix = prefix
				}
			}
			out = append(out, opt)
		}
	}
	return out, nil
}

// Detect picks the first usable option, falling back to global broadcast
// when no interface qualifies.
func Detect() Option {
	opts, err := Options()
	if err != nil || len(opts) == 0 {
		return Option{Address: "0.0.0.0", Broadcast: "255.255.255.255"}
	}
	return opts[0]
}
