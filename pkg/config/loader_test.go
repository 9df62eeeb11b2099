package config_test

import (
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vpnlab/subkit/pkg/config"
)

type envConfig struct {
	Str  string `env:"TEST_STRING_SUCCESS" envDefault:"default_value"`
	Int  int    `env:"TEST_INT_SUCCESS" envDefault:"42"`
	Bool bool   `env:"TEST_BOOL_SUCCESS" envDefault:"true"`
}

type defaultsConfig struct {
	Str  string `env:"TEST_STRING_DEFAULT" envDefault:"default_value"`
	Int  int    `env:"TEST_INT_DEFAULT" envDefault:"42"`
	Bool bool   `env:"TEST_BOOL_DEFAULT" envDefault:"true"`
}

type singletonConfig struct {
	Str string `env:"TEST_STRING_SINGLETON" envDefault:"default_value"`
}

type firstConfig struct {
	Value string `env:"VALUE_TYPE1" envDefault:"default1"`
}

type secondConfig struct {
	Value string `env:"VALUE_TYPE2" envDefault:"default2"`
}

type requiredConfig struct {
	Required string `env:"REQUIRED_VALUE,required"`
}

func TestLoad_Success(t *testing.T) {
	t.Setenv("TEST_STRING_SUCCESS", "test_value")
	t.Setenv("TEST_INT_SUCCESS", "100")
	t.Setenv("TEST_BOOL_SUCCESS", "false")

	var cfg envConfig
	require.NoError(t, config.Load(&cfg))
	assert.Equal(t, "test_value", cfg.Str)
	assert.Equal(t, 100, cfg.Int)
	assert.Equal(t, false, cfg.Bool)
}

func TestLoad_DefaultValues(t *testing.T) {
	os.Unsetenv("TEST_STRING_DEFAULT")
	os.Unsetenv("TEST_INT_DEFAULT")
	os.Unsetenv("TEST_BOOL_DEFAULT")

	var cfg defaultsConfig
	require.NoError(t, config.Load(&cfg))
	assert.Equal(t, "default_value", cfg.Str)
	assert.Equal(t, 42, cfg.Int)
	assert.Equal(t, true, cfg.Bool)
}

func TestLoad_MissingRequired(t *testing.T) {
	os.Unsetenv("REQUIRED_VALUE")

	var cfg requiredConfig
	err := config.Load(&cfg)

	require.Error(t, err)
	assert.True(t, errors.Is(err, config.ErrParsingConfig))
}

func TestLoad_Singleton(t *testing.T) {
	t.Setenv("TEST_STRING_SINGLETON", "first_value")

	var first singletonConfig
	require.NoError(t, config.Load(&first))

	// Changing the environment after the first load must not leak through.
	t.Setenv("TEST_STRING_SINGLETON", "second_value")

	var second singletonConfig
	require.NoError(t, config.Load(&second))

	assert.Equal(t, first.Str, second.Str)
	assert.Equal(t, "first_value", second.Str)
}

func TestLoad_DifferentTypes(t *testing.T) {
	t.Setenv("VALUE_TYPE1", "test_type1")
	t.Setenv("VALUE_TYPE2", "test_type2")

	var cfg1 firstConfig
	require.NoError(t, config.Load(&cfg1))

	var cfg2 secondConfig
	require.NoError(t, config.Load(&cfg2))

	assert.Equal(t, "test_type1", cfg1.Value)
	assert.Equal(t, "test_type2", cfg2.Value)
}

func TestLoad_NilPointer(t *testing.T) {
	var cfg *envConfig
	err := config.Load(cfg)

	require.Error(t, err)
	assert.ErrorIs(t, err, config.ErrNilPointer)
}
