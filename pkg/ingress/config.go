package ingress

import "time"

type Config struct {
	WebhookSecret   string        `env:"INGRESS_WEBHOOK_SECRET,required"`            // WebhookSecret is the shared HMAC secret for payment-provider webhooks.
	MaxBodyBytes    int64         `env:"INGRESS_MAX_BODY_BYTES" envDefault:"65536"`  // MaxBodyBytes caps the accepted request body size.
	MaxSignatureAge time.Duration `env:"INGRESS_MAX_SIGNATURE_AGE" envDefault:"5m"`  // MaxSignatureAge bounds the signature timestamp window against replays.
}
