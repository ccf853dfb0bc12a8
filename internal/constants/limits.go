package constants

const (
	WSBroadcastBufferSize  = 256
	WSClientSendBufferSize = 64

	// MaxJSONBodyBytes caps non-multipart request bodies.
	MaxJSONBodyBytes = 1 << 20

	MaxMessageContentLength = 4000
)
