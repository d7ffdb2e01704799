// Package upstream implements C7, the upstream session servant: the
// per-connection subscription handler and its gap-fill/backlog services.
package upstream

import (
	"errors"
	"fmt"
	"net"
	"sync"
)

// AddressPool hands out client addresses from a feed's CIDR range. This is
// a minimal sequential allocator sufficient for one upstream process to
// track which addresses it has already promised a sender's authorizer.
type AddressPool struct {
	mu        sync.Mutex
	prefixLen int
	first     net.IP
	bcast     net.IP
	next      net.IP
	inUse     map[string]bool
}

// NewAddressPool parses cidr (e.g. "10.1.2.0/24") and constructs a pool
// over its usable host addresses.
func NewAddressPool(cidr string) (*AddressPool, error) {
	_, ipnet, err := net.ParseCIDR(cidr)
	if err != nil {
		return nil, fmt.Errorf("upstream: parse address pool %q: %w", cidr, err)
	}
	ip4 := ipnet.IP.To4()
	if ip4 == nil {
		return nil, fmt.Errorf("upstream: address pool %q is not IPv4", cidr)
	}
	mask := ipnet.Mask

	bcast := make(net.IP, 4)
	for i := range ip4 {
		bcast[i] = ip4[i] | ^mask[i]
	}

	first := make(net.IP, 4)
	copy(first, ip4)
	incIP(first)

	ones, _ := mask.Size()
	return &AddressPool{
		prefixLen: ones,
		first:     first,
		bcast:     bcast,
		next:      append(net.IP(nil), first...),
		inUse:     make(map[string]bool),
	}, nil
}

// Reserve returns the next free address in the pool along with its prefix
// length, wrapping back to the first usable address once it reaches the
// pool's broadcast address.
func (p *AddressPool) Reserve() (net.IP, int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	start := append(net.IP(nil), p.next...)
	for {
		cand := append(net.IP(nil), p.next...)
		p.advance()
		if !p.inUse[cand.String()] {
			p.inUse[cand.String()] = true
			return cand, p.prefixLen, nil
		}
		if p.next.Equal(start) {
			return nil, 0, errors.New("upstream: address pool exhausted")
		}
	}
}

func (p *AddressPool) advance() {
	incIP(p.next)
	if p.next.Equal(p.bcast) {
		copy(p.next, p.first)
	}
}

// Release returns ip to the pool.
func (p *AddressPool) Release(ip net.IP) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.inUse, ip.String())
}

func incIP(ip net.IP) {
	for i := len(ip) - 1; i >= 0; i-- {
		ip[i]++
		if ip[i] != 0 {
			return
		}
	}
}
