package observability

import (
	"os"

	"github.com/grafana/pyroscope-go"
)

// StartProfiling attaches continuous profiling when PYROSCOPE_SERVER_ADDRESS
// is set; a missing server address disables profiling silently so local runs
// need no extra setup.
func StartProfiling(appName string) {
	serverAddress := os.Getenv("PYROSCOPE_SERVER_ADDRESS")
	if serverAddress == "" {
		return
	}

	_, _ = pyroscope.Start(pyroscope.Config{
		ApplicationName: appName,
		ServerAddress:   serverAddress,
		Logger:          nil,
		ProfileTypes: []pyroscope.ProfileType{
			pyroscope.ProfileCPU,
			pyroscope.ProfileAllocObjects,
			pyroscope.ProfileAllocSpace,
			pyroscope.ProfileInuseObjects,
			pyroscope.ProfileInuseSpace,
		},
	})
}
