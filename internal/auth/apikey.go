package auth

import (
	"crypto/subtle"
	"fmt"
	"net/http"
	"net/netip"

	"github.com/gin-gonic/gin"
)

const headerName = "X-API-Key"

// TrustedNetworks is a set of CIDR prefixes whose clients skip the API key.
type TrustedNetworks []netip.Prefix

// ParseTrustedNetworks parses CIDR strings such as "192.168.0.0/16". Bare
// addresses are accepted as single-host prefixes.
func ParseTrustedNetworks(cidrs []string) (TrustedNetworks, error) {
	nets := make(TrustedNetworks, 0, len(cidrs))
	for _, s := range cidrs {
		if p, err := netip.ParsePrefix(s); err == nil {
			nets = append(nets, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(s)
		if err != nil {
			return nil, fmt.Errorf("parse trusted network %q: %w", s, err)
		}
		nets = append(nets, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return nets, nil
}

// Contains reports whether ip belongs to one of the networks.
func (t TrustedNetworks) Contains(ip string) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range t {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// APIKeyMiddleware validates the API key from the X-API-Key header.
// If apiKey is empty, authentication is disabled. Clients from trusted
// networks are let through without a key.
func APIKeyMiddleware(apiKey string, trusted TrustedNetworks) gin.HandlerFunc {
	return func(c *gin.Context) {
		if apiKey == "" || trusted.Contains(c.ClientIP()) {
			c.Next()
			return
		}

		provided := c.GetHeader(headerName)
		if provided == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "missing API key",
			})
			return
		}

		if subtle.ConstantTimeCompare([]byte(provided), []byte(apiKey)) != 1 {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "invalid API key",
			})
			return
		}

		c.Next()
	}
}
