package version

import (
	"runtime"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNewCollector(t *testing.T) {
	c := NewCollector("test")

	assert.Equal(t, 1.0, testutil.ToFloat64(c))
	assert.NoError(t, testutil.CollectAndCompare(c, strings.NewReader(`
# HELP test_build_info Build information of the running exporter.
# TYPE test_build_info gauge
test_build_info{build_date="",git_commit="",go_version="`+runtime.Version()+`",platform="`+runtime.GOOS+"/"+runtime.GOARCH+`",version=".."} 1
`)))
}
