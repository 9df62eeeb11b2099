package lifecycle

import "time"

type Config struct {
	Parallelism    int           `env:"PROVISIONER_PARALLELISM" envDefault:"4"`    // Parallelism bounds concurrent panel calls across subscriptions.
	MaxAttempts    int           `env:"PROVISIONER_MAX_ATTEMPTS" envDefault:"5"`   // MaxAttempts bounds panel call retries per action, first attempt included.
	CallTimeout    time.Duration `env:"PROVISIONER_CALL_TIMEOUT" envDefault:"15s"` // CallTimeout bounds each individual panel call.
	SweepInterval  time.Duration `env:"SWEEP_INTERVAL" envDefault:"1m"`            // SweepInterval is the pause between expiry scans.
	ConflictBudget int           `env:"ENGINE_CONFLICT_BUDGET" envDefault:"5"`     // ConflictBudget bounds reload-and-retry rounds on version conflicts.
	CredentialFlow string        `env:"CREDENTIAL_FLOW" envDefault:""`             // CredentialFlow overrides the xray flow assigned to new credentials.
}
