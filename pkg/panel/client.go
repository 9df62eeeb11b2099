package panel

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// CredentialRef identifies a provisioned client credential on a specific panel.
// It is the only piece of panel state the reconciliation core persists.
type CredentialRef struct {
	PanelID      string    `json:"panel_id"`
	CredentialID uuid.UUID `json:"credential_id"`
}

// IsZero reports whether the reference is unset.
func (r CredentialRef) IsZero() bool {
	return r.PanelID == "" && r.CredentialID == uuid.Nil
}

// CredentialSpec describes the desired shape of a client credential on the
// panel. Field semantics follow the 3x-ui client object: the email is the
// panel-side lookup key, traffic and expiry are absolute values (not deltas).
type CredentialSpec struct {
	CredentialID uuid.UUID
	Email        string // owner identifier, unique per panel
	Enabled      bool
	TrafficBytes int64 // -1 for unlimited
	DeviceLimit  int64 // -1 for unlimited
	ExpiresAt    time.Time
	Flow         string
	SubID        string
}

// ClientState is the panel's view of a provisioned credential, used to
// disambiguate after timeouts and to surface usage to read-only consumers.
type ClientState struct {
	Ref       CredentialRef
	Email     string
	Enabled   bool
	UpBytes   int64
	DownBytes int64
	// TotalBytes is the configured allowance, zero or negative for unlimited.
	TotalBytes int64
	ExpiresAt  time.Time
}

// UsedBytes returns total transferred traffic in both directions.
func (s ClientState) UsedBytes() int64 {
	return s.UpBytes + s.DownBytes
}

// Client is the remote VPN-panel management API. All calls must honor the
// context deadline; a timeout is reported as a retryable error, never as
// success. Implementations are safe for concurrent use.
type Client interface {
	// CreateOrUpdateClient converges the credential on the given panel to the
	// spec, creating it when absent. The returned reference is stable for the
	// lifetime of the credential.
	CreateOrUpdateClient(ctx context.Context, panelID string, spec CredentialSpec) (CredentialRef, error)

	// SuspendClient disables the credential without deleting it.
	SuspendClient(ctx context.Context, ref CredentialRef) error

	// RemoveClient deletes the credential from the panel. Removing an already
	// absent credential is not an error.
	RemoveClient(ctx context.Context, ref CredentialRef) error

	// QueryClient returns the panel's current view of the credential, or
	// ErrClientNotFound when the panel has no such client.
	QueryClient(ctx context.Context, ref CredentialRef) (*ClientState, error)
}

// Selector picks a panel for a subscription that has never been provisioned.
// Once a credential exists its panel assignment is pinned by the CredentialRef.
type Selector interface {
	Assign(ctx context.Context) (panelID string, err error)
}

// SelectorFunc adapts a function to the Selector interface.
type SelectorFunc func(ctx context.Context) (string, error)

func (f SelectorFunc) Assign(ctx context.Context) (string, error) {
	return f(ctx)
}

// StaticSelector always assigns the same panel, for single-panel deployments.
func StaticSelector(panelID string) Selector {
	return SelectorFunc(func(context.Context) (string, error) {
		return panelID, nil
	})
}
