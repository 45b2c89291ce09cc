package util

// RequestOrigin reconstructs the effective external origin (scheme://host) of
// a request, honoring reverse-proxy forwarding headers. Used to compute the
// issuer for discovery metadata without a hard-coded base URL.
func RequestOrigin(forwardedProto, forwardedHost, host string, tls bool) string {
	scheme := "http"
	if tls {
		scheme = "https"
	}
	if forwardedProto != "" {
		scheme = forwardedProto
	}
	if forwardedHost != "" {
		host = forwardedHost
	}
	return scheme + "://" + host
}
