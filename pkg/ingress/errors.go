package ingress

import "errors"

var (
	// ErrInvalidSignature rejects requests whose HMAC signature is missing,
	// stale, or does not match the payload.
	ErrInvalidSignature = errors.New("invalid webhook signature")

	// ErrInvalidPayload rejects bodies that are not a well-formed event
	// document, including unknown fields.
	ErrInvalidPayload = errors.New("invalid webhook payload")

	ErrPayloadTooLarge      = errors.New("webhook payload too large")
	ErrInvalidConfiguration = errors.New("invalid ingress configuration")
)
