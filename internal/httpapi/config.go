package httpapi

// maxBodyBytes caps a single inbound websocket message. Frames carry base64
// images, so the default is larger than a typical JSON body.
var maxBodyBytes int64 = 4 << 20

// SetMaxBodyBytes allows configuring the maximum inbound message size.
func SetMaxBodyBytes(n int64) {
	if n <= 0 {
		maxBodyBytes = 4 << 20
		return
	}
	maxBodyBytes = n
}

// CORS configuration (opt-in). If disabled, no CORS middleware is added and
// websocket upgrades accept any origin.
var (
	corsEnabled        bool
	corsAllowedOrigins []string
	corsAllowedMethods []string
	corsAllowedHeaders []string
)

// SetCORSOptions configures CORS behavior for the HTTP server.
func SetCORSOptions(enabled bool, origins, methods, headers []string) {
	corsEnabled = enabled
	corsAllowedOrigins = append([]string(nil), origins...)
	corsAllowedMethods = append([]string(nil), methods...)
	corsAllowedHeaders = append([]string(nil), headers...)
}
