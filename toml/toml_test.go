package toml_test

import (
	"testing"
	"time"

	"github.com/featurebasedb/lakeingest/toml"
	gotoml "github.com/pelletier/go-toml"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDuration(t *testing.T) {
	type conf struct {
		Timeout toml.Duration `toml:"timeout"`
	}

	b, err := gotoml.Marshal(conf{Timeout: toml.Duration(90 * time.Second)})
	require.NoError(t, err)
	assert.Contains(t, string(b), `timeout = "1m30s"`)

	var got conf
	require.NoError(t, gotoml.Unmarshal(b, &got))
	assert.Equal(t, 90*time.Second, time.Duration(got.Timeout))

	var d toml.Duration
	assert.Error(t, d.UnmarshalText([]byte("soon")))
}
