// Package version carries build metadata injected at link time:
//
//	go build -ldflags "-X github.com/pokojowo/realtime/internal/version.Version=1.2.0 \
//	                   -X github.com/pokojowo/realtime/internal/version.Commit=$(git rev-parse --short HEAD) \
//	                   -X github.com/pokojowo/realtime/internal/version.BuildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
package version

var (
	// Version is the release tag, "dev" for local builds.
	Version = "dev"

	// Commit is the short git hash of the build.
	Commit = "unknown"

	// BuildTime is the UTC build timestamp.
	BuildTime = "unknown"
)

// String renders the full build identifier for --version output.
func String() string {
	return Version + " (" + Commit + ") built " + BuildTime
}
