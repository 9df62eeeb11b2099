package admin

type Config struct {
	SubscriptionBaseURL string `env:"ADMIN_SUBSCRIPTION_BASE_URL,required"`  // SubscriptionBaseURL is the panel's subscription endpoint prefix for connection keys.
	DefaultListLimit    int    `env:"ADMIN_DEFAULT_LIST_LIMIT" envDefault:"100"` // DefaultListLimit caps status listings when no limit is given.
	QRSize              int    `env:"ADMIN_QR_SIZE" envDefault:"256"`        // QRSize is the rendered QR code edge length in pixels.
}
