package proxy

import (
	"net/http"
	"net/url"
)

// forwarder dispatches requests to an upstream authority. The upstream
// HTTP/1.1 client itself is out of this module's scope per the external
// interfaces this pipeline consumes; this is the minimal plumbing needed to
// exercise it, not a general-purpose client.
type forwarder struct {
	client *http.Client
}

func newForwarder(transport http.RoundTripper) *forwarder {
	return &forwarder{client: &http.Client{Timeout: 0, Transport: transport}}
}

// forward clones the inbound request onto authority (no TLS, matching the
// predecessor's HttpPeer::new(instance, false, ...)) and executes it.
func (f *forwarder) forward(r *http.Request, authority string) (*http.Response, error) {
	target := &url.URL{
		Scheme:   "http",
		Host:     authority,
		Path:     r.URL.Path,
		RawQuery: r.URL.RawQuery,
	}

	outbound, err := http.NewRequestWithContext(r.Context(), r.Method, target.String(), r.Body)
	if err != nil {
		return nil, err
	}
	outbound.Header = r.Header.Clone()
	outbound.Host = authority

	return f.client.Do(outbound)
}
