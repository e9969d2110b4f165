package handlers

import (
	"net/http"
	"runtime"

	"github.com/fulmenhq/gofulmen/crucible"

	"github.com/apistarter/apistarter/internal/server/respond"
)

// BuildInfo identifies the running binary. Values are injected from main.
type BuildInfo struct {
	Name      string
	Version   string
	Commit    string
	BuildDate string
}

// VersionResponse represents the version information response
type VersionResponse struct {
	App          AppInfo     `json:"app"`
	Dependencies DepInfo     `json:"dependencies"`
	Runtime      RuntimeInfo `json:"runtime"`
}

// AppInfo contains application version details
type AppInfo struct {
	Name      string `json:"name"`
	Version   string `json:"version"`
	Commit    string `json:"git_commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version,omitempty"`
}

// DepInfo contains dependency version information
type DepInfo struct {
	Gofulmen string `json:"gofulmen"`
	Crucible string `json:"crucible"`
}

// RuntimeInfo contains runtime environment information
type RuntimeInfo struct {
	Platform      string `json:"platform"`
	NumCPU        int    `json:"num_cpu"`
	NumGoroutines int    `json:"num_goroutines"`
}

// VersionHandler handles version information requests
func (b BuildInfo) VersionHandler(w http.ResponseWriter, r *http.Request) {
	version := crucible.GetVersion()

	_ = respond.JSON(w, http.StatusOK, VersionResponse{
		App: AppInfo{
			Name:      b.Name,
			Version:   b.Version,
			Commit:    b.Commit,
			BuildDate: b.BuildDate,
			GoVersion: runtime.Version(),
		},
		Dependencies: DepInfo{
			Gofulmen: version.Gofulmen,
			Crucible: version.Crucible,
		},
		Runtime: RuntimeInfo{
			Platform:      runtime.GOOS + "/" + runtime.GOARCH,
			NumCPU:        runtime.NumCPU(),
			NumGoroutines: runtime.NumGoroutine(),
		},
	})
}

// RootResponse describes the service on GET /.
type RootResponse struct {
	Message   string            `json:"message"`
	Version   string            `json:"version"`
	Endpoints map[string]string `json:"endpoints"`
}

// RootHandler lists the service name and its main endpoints.
func (b BuildInfo) RootHandler(w http.ResponseWriter, r *http.Request) {
	_ = respond.JSON(w, http.StatusOK, RootResponse{
		Message: b.Name + " Server",
		Version: b.Version,
		Endpoints: map[string]string{
			"health": "/health",
			"api":    "/api/example",
		},
	})
}
