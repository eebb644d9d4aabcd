package version

// Tag is set at build time:
// go build -ldflags="-X 'github.com/opentip/funnelhub/pkg/version.Tag=v1.2.0'" ./cmd/http
var Tag = "dev"
