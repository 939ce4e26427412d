package tracelogger

// version is stamped at build time:
//
//	go build -ldflags "-X github.com/tracelens/trace-logger-go/tracelogger.version=1.2.0"
var version = "dev"

// SDKVersion returns the SDK version label.
func SDKVersion() string {
	return version
}

// VersionHeaderValue returns the language-qualified version the
// interservice client sends as the X-Trace-Logger-Version header.
func VersionHeaderValue() string {
	return "go:" + version
}
