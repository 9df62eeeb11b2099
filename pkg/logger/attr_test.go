package logger_test

import (
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vpnlab/subkit/pkg/logger"
)

func TestError(t *testing.T) {
	t.Parallel()

	require.Equal(t, slog.Attr{}, logger.Error(nil))

	attr := logger.Error(errors.New("boom"))
	require.Equal(t, "error", attr.Key)
	require.Equal(t, "boom", attr.Value.Any().(error).Error())
}

func TestErrors(t *testing.T) {
	t.Parallel()

	require.Equal(t, slog.Attr{}, logger.Errors(nil, nil))

	attr := logger.Errors(errors.New("one"), nil, errors.New("two"))
	require.Equal(t, "errors", attr.Key)
	require.Len(t, attr.Value.Group(), 2)
}

func TestDomainAttrs(t *testing.T) {
	t.Parallel()

	require.Equal(t, slog.Attr{}, logger.SubscriptionID(nil))
	require.Equal(t, "subscription_id", logger.SubscriptionID("abc").Key)
	require.Equal(t, "component", logger.Component("engine").Key)
	require.Equal(t, "panel_id", logger.PanelID("fra-1").Key)
	require.Equal(t, int64(3), logger.Attempt(3).Value.Int64())
}
