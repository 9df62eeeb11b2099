package ingress_test

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vpnlab/subkit/pkg/ingress"
)

func TestSignatureRoundTrip(t *testing.T) {
	t.Parallel()

	payload := []byte(`{"kind":"payment_confirmed"}`)
	sig, ts, err := ingress.SignPayload("secret", payload, time.Now())
	require.NoError(t, err)

	require.NoError(t, ingress.VerifySignature("secret", payload, sig, ts, 5*time.Minute))
}

func TestVerifySignatureRejects(t *testing.T) {
	t.Parallel()

	payload := []byte(`{"kind":"payment_confirmed"}`)
	sig, ts, err := ingress.SignPayload("secret", payload, time.Now())
	require.NoError(t, err)

	t.Run("wrong secret", func(t *testing.T) {
		t.Parallel()
		err := ingress.VerifySignature("other", payload, sig, ts, 5*time.Minute)
		require.ErrorIs(t, err, ingress.ErrInvalidSignature)
	})

	t.Run("tampered payload", func(t *testing.T) {
		t.Parallel()
		err := ingress.VerifySignature("secret", []byte(`{"kind":"cancelled"}`), sig, ts, 5*time.Minute)
		require.ErrorIs(t, err, ingress.ErrInvalidSignature)
	})

	t.Run("missing headers", func(t *testing.T) {
		t.Parallel()
		err := ingress.VerifySignature("secret", payload, "", "", 5*time.Minute)
		require.ErrorIs(t, err, ingress.ErrInvalidSignature)
	})

	t.Run("stale timestamp", func(t *testing.T) {
		t.Parallel()
		oldSig, oldTS, err := ingress.SignPayload("secret", payload, time.Now().Add(-time.Hour))
		require.NoError(t, err)
		err = ingress.VerifySignature("secret", payload, oldSig, oldTS, 5*time.Minute)
		require.ErrorIs(t, err, ingress.ErrInvalidSignature)
	})

	t.Run("future timestamp", func(t *testing.T) {
		t.Parallel()
		futSig, futTS, err := ingress.SignPayload("secret", payload, time.Now().Add(time.Hour))
		require.NoError(t, err)
		err = ingress.VerifySignature("secret", payload, futSig, futTS, 5*time.Minute)
		require.ErrorIs(t, err, ingress.ErrInvalidSignature)
	})

	t.Run("malformed timestamp", func(t *testing.T) {
		t.Parallel()
		err := ingress.VerifySignature("secret", payload, sig, "not-a-number", 5*time.Minute)
		require.ErrorIs(t, err, ingress.ErrInvalidSignature)
	})
}

func TestVerifySignatureNoMaxAge(t *testing.T) {
	t.Parallel()

	payload := []byte(`{}`)
	old := time.Now().Add(-24 * time.Hour)
	sig, _, err := ingress.SignPayload("secret", payload, old)
	require.NoError(t, err)

	ts := strconv.FormatInt(old.Unix(), 10)
	require.NoError(t, ingress.VerifySignature("secret", payload, sig, ts, 0),
		"zero maxAge disables the replay window")
}
