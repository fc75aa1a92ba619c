package version

import (
	"fmt"
	"runtime"

	"github.com/prometheus/client_golang/prometheus"
)

type Info struct {
	Major        string `json:"major"`
	Minor        string `json:"minor"`
	Patch        string `json:"patch"`
	GitCommit    string `json:"gitCommit"`
	GitTreeState string `json:"gitTreeState"`
	BuildDate    string `json:"buildDate"`
	GoVersion    string `json:"goVersion"`
	Compiler     string `json:"compiler"`
	Platform     string `json:"platform"`
}

func (info Info) String() string {
	return fmt.Sprintf("%s.%s.%s", info.Major, info.Minor, info.Patch)
}

var (
	major        string
	minor        string
	patch        string
	gitCommit    string
	gitTreeState string
	buildDate    string
)

var Get = func() Info {
	return Info{
		Major:        major,
		Minor:        minor,
		Patch:        patch,
		GitCommit:    gitCommit,
		GitTreeState: gitTreeState,
		BuildDate:    buildDate,
		GoVersion:    runtime.Version(),
		Compiler:     runtime.Compiler,
		Platform:     fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
	}
}

// NewCollector exposes the build info as a constant gauge with value 1.
func NewCollector(namespace string) prometheus.Collector {
	info := Get()
	return prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name:      "build_info",
			Namespace: namespace,
			Help:      "Build information of the running exporter.",
			ConstLabels: prometheus.Labels{
				"version":    info.String(),
				"git_commit": info.GitCommit,
				"build_date": info.BuildDate,
				"go_version": info.GoVersion,
				"platform":   info.Platform,
			},
		},
		func() float64 { return 1 },
	)
}
