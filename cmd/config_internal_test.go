package cmd

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/featurebasedb/lakeingest/ctl"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetAllConfig(t *testing.T) {
	cfgFile := filepath.Join(t.TempDir(), "lakeingest.toml")
	require.NoError(t, os.WriteFile(cfgFile, []byte(`
namespace = "file-ns"
prefix = "file-prefix"
policy = "quarantine"

[batch]
	max-rows = 100
	max-seconds = 5

[kafka]
	hosts = ["k1:9092", "k2:9092"]
	timeout = "2s"
`), 0600))

	t.Setenv("LAKEINGEST_PREFIX", "env-prefix")
	t.Setenv("LAKEINGEST_BATCH_MAX_SECONDS", "7")
	t.Setenv("LAKEINGEST_STORAGE_FORCE_PATH_STYLE", "true")

	conf := ctl.NewConfig()
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.StringP("config", "c", "", "")
	ctl.BuildConfigFlags(flags, conf)
	require.NoError(t, flags.Parse([]string{"--config", cfgFile, "--namespace", "flag-ns"}))

	require.NoError(t, setAllConfig(viper.New(), flags))

	// flag > env > file > default
	assert.Equal(t, "flag-ns", conf.Namespace)
	assert.Equal(t, "env-prefix", conf.Prefix)
	assert.Equal(t, 7, conf.Batch.MaxSeconds)
	assert.True(t, conf.Storage.ForcePathStyle)
	assert.Equal(t, "quarantine", conf.Policy)
	assert.Equal(t, 100, conf.Batch.MaxRows)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, conf.Kafka.Hosts)
	assert.Equal(t, 2*time.Second, time.Duration(conf.Kafka.Timeout))
	assert.Equal(t, ctl.NewConfig().Catalog, conf.Catalog)
}
