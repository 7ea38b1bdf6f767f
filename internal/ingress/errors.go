package ingress

import "errors"

// Domain errors for ingress decoding.
var (
	// ErrMalformedPayload is returned when a body cannot be decoded for its content type.
	ErrMalformedPayload = errors.New("ingress: malformed payload")

	// ErrUnsupportedEncoding is returned for an unknown Content-Encoding.
	ErrUnsupportedEncoding = errors.New("ingress: unsupported content encoding")

	// ErrPayloadTooLarge is returned when a decompressed body exceeds the limit.
	ErrPayloadTooLarge = errors.New("ingress: payload too large")
)
