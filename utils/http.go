// utils/http.go
package utils

import (
	"net/http"
	"time"
)

// HTTPClient is shared by the roster sync worker; badge payloads are small.
var HTTPClient = &http.Client{
	Timeout: 30 * time.Second,
}
