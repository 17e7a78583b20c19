package version

// Version is overridden at build time:
//
//	go build -ldflags "-X chatctl/internal/version.Version=v1.2.3" ./cmd/chatctl
var Version = "dev"
