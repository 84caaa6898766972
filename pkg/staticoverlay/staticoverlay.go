// Package staticoverlay serves the one endpoint answered entirely out of a
// document compiled into the binary, rather than proxied upstream.
package staticoverlay

import (
	"embed"
	"fmt"
	"net/http"
	"strconv"
)

//go:embed data/epoch_parameters.json
var data embed.FS

// EpochParametersPath is the fixed request path served by this overlay.
const EpochParametersPath = "/epochs/latest/parameters"

// Document is the compiled-in response body and its pre-computed
// content-length.
type Document struct {
	body          []byte
	contentLength string
}

// Load reads the embedded overlay document. It can only fail if the binary
// was built without the embedded asset, which would be a packaging defect.
func Load() (*Document, error) {
	body, err := data.ReadFile("data/epoch_parameters.json")
	if err != nil {
		return nil, fmt.Errorf("reading embedded epoch parameters overlay: %w", err)
	}
	return &Document{body: body, contentLength: strconv.Itoa(len(body))}, nil
}

// ServeHTTP writes the overlay document with the headers spec section 4.1
// requires.
func (d *Document) ServeHTTP(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Content-Length", d.contentLength)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(d.body)
}
