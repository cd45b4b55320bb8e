package api

import (
	"encoding/json"
	"net/http"
	"runtime"
)

const serviceName = "ams-calendar"

type versionResponse struct {
	Service     string `json:"service"`
	Version     string `json:"version"`
	GitCommit   string `json:"git_commit"`
	BuildDate   string `json:"build_date"`
	GoVersion   string `json:"go_version"`
	Environment string `json:"environment"`
}

// orUnset fills ldflags values missing from local builds.
func (b BuildInfo) orUnset() BuildInfo {
	fill := func(v, fallback string) string {
		if v == "" {
			return fallback
		}
		return v
	}
	return BuildInfo{
		Version:   fill(b.Version, "dev"),
		GitCommit: fill(b.GitCommit, "unknown"),
		BuildDate: fill(b.BuildDate, "unknown"),
	}
}

// VersionHandler serves the build that is running. The body is fixed for
// the life of the process, so it is encoded once.
func VersionHandler(build BuildInfo, env string) http.Handler {
	build = build.orUnset()
	body, _ := json.Marshal(versionResponse{
		Service:     serviceName,
		Version:     build.Version,
		GitCommit:   build.GitCommit,
		BuildDate:   build.BuildDate,
		GoVersion:   runtime.Version(),
		Environment: env,
	})
	body = append(body, '\n')

	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-cache")
		_, _ = w.Write(body)
	})
}
