// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MANAS360 Contributors

package httpapi

import (
	"net/http"
	"net/netip"
	"strings"

	"github.com/samber/oops"
)

// ParseTrustedProxies parses CIDR prefixes or bare addresses.
func ParseTrustedProxies(list []string) ([]netip.Prefix, error) {
	out := make([]netip.Prefix, 0, len(list))
	for _, raw := range list {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if strings.Contains(raw, "/") {
			p, err := netip.ParsePrefix(raw)
			if err != nil {
				return nil, oops.Code("HTTP_INVALID_CONFIG").With("proxy", raw).Wrapf(err, "trusted proxy")
			}
			out = append(out, p.Masked())
			continue
		}
		a, err := netip.ParseAddr(raw)
		if err != nil {
			return nil, oops.Code("HTTP_INVALID_CONFIG").With("proxy", raw).Wrapf(err, "trusted proxy")
		}
		a = a.Unmap()
		out = append(out, netip.PrefixFrom(a, a.BitLen()))
	}
	return out, nil
}

type proxySet []netip.Prefix

func (p proxySet) contains(a netip.Addr) bool {
	a = a.Unmap()
	for _, pre := range p {
		if pre.Contains(a) {
			return true
		}
	}
	return false
}

// realIP replaces RemoteAddr with the forwarded client address, but only for
// requests that arrive from a trusted proxy. Everyone else is keyed on the
// socket peer, so forwarding headers cannot dodge per-IP rate limits.
func (s *server) realIP(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(s.proxies) > 0 {
			if client, ok := s.proxies.clientAddr(r); ok {
				r.RemoteAddr = client.String()
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (p proxySet) clientAddr(r *http.Request) (netip.Addr, bool) {
	peer, err := netip.ParseAddr(hostOnly(r.RemoteAddr))
	if err != nil || !p.contains(peer) {
		return netip.Addr{}, false
	}

	if xff := r.Header.Values("X-Forwarded-For"); len(xff) > 0 {
		hops := strings.Split(strings.Join(xff, ","), ",")
		// Rightmost hop not added by one of our proxies.
		var last netip.Addr
		for i := len(hops) - 1; i >= 0; i-- {
			a, err := netip.ParseAddr(strings.TrimSpace(hops[i]))
			if err != nil {
				return netip.Addr{}, false
			}
			last = a.Unmap()
			if !p.contains(a) {
				return last, true
			}
		}
		return last, last.IsValid()
	}
	if xr := strings.TrimSpace(r.Header.Get("X-Real-IP")); xr != "" {
		a, err := netip.ParseAddr(xr)
		if err != nil {
			return netip.Addr{}, false
		}
		return a.Unmap(), true
	}
	return netip.Addr{}, false
}
