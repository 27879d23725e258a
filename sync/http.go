package sync

import (
	"net/http"
	"strings"
	"time"
)

// HTTPRequestTimeout is the default timeout for all HTTP requests to the Loops APIs.
const HTTPRequestTimeout = 60 * time.Second

// downloadClient has no overall timeout as the body is consumed while records are upserted,
// only the wait for response headers is bounded.
func downloadClient() *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = HTTPRequestTimeout
	return &http.Client{Transport: transport}
}

func joinEndpoint(endpoint string, procedure string) string {
	return strings.TrimRight(endpoint, "/") + "/" + strings.TrimLeft(procedure, "/")
}
