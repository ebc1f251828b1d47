package domain

import (
	"context"
	"net"
	"strings"
)

// Origin is the request metadata the transport hands to the core.
// Header names stay in the transport; only the candidates travel here.
type Origin struct {
	ForwardedFor string // raw X-Forwarded-For value
	RealIP       string // raw X-Real-IP value
	RemoteAddr   string // transport peer address, host:port or host
	UserAgent    string
}

// ClientAddress resolves the client address, preferring the first
// forwarded-for hop, then the real-ip header, then the peer address.
func (o Origin) ClientAddress() string {
	if fwd := strings.TrimSpace(o.ForwardedFor); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	if ip := strings.TrimSpace(o.RealIP); ip != "" {
		return ip
	}
	if o.RemoteAddr == "" {
		return "unknown"
	}
	if host, _, err := net.SplitHostPort(o.RemoteAddr); err == nil {
		return host
	}
	return o.RemoteAddr
}

// DeviceClass buckets the user agent into Mobile, Tablet, Desktop or Unknown.
func (o Origin) DeviceClass() string {
	ua := o.UserAgent
	switch {
	case ua == "":
		return "Unknown"
	case strings.Contains(ua, "Mobile") || strings.Contains(ua, "Android"):
		return "Mobile"
	case strings.Contains(ua, "iPad") || strings.Contains(ua, "Tablet"):
		return "Tablet"
	default:
		return "Desktop"
	}
}

type originKey struct{}

// WithOrigin stores o in ctx for components that are not handed it directly.
func WithOrigin(ctx context.Context, o Origin) context.Context {
	return context.WithValue(ctx, originKey{}, o)
}

// OriginFromContext returns the origin stored by WithOrigin, if any.
func OriginFromContext(ctx context.Context) (Origin, bool) {
	o, ok := ctx.Value(originKey{}).(Origin)
	return o, ok
}
