package proxy

import (
	"net/http"
	"regexp"
)

// dmtrAPIKeyHeader is the preferred credential source.
const dmtrAPIKeyHeader = "dmtr-api-key"

// hostPattern extracts an optional leading credential label and the network
// label from a Host header shaped like
// "[credential.]<network>.blockfrost-<env>...".
var hostPattern = regexp.MustCompile(`(dmtr_[\w\d-]+)?\.?([\w]+)\.blockfrost-([\w\d]+).+`)

// extractKeyAndNetwork resolves the request's credential and target network.
// The network always comes from the Host header; the credential prefers the
// dmtr-api-key header and only falls back to the host's leading label when
// that header is absent. An absent or malformed Host header yields an empty
// network, which fails roster lookup rather than panicking.
func extractKeyAndNetwork(r *http.Request) (credential, network string) {
	m := hostPattern.FindStringSubmatch(r.Host)
	credential = r.Header.Get(dmtrAPIKeyHeader)
	if m == nil {
		return credential, ""
	}
	network = m[2]
	if credential == "" && m[1] != "" {
		credential = m[1]
	}
	return credential, network
}
