package version

// Version is the Major.Minor.Patch tag of the build, stamped by the
// Makefile with -ldflags; 'dev' otherwise
var Version string = "dev"

// UserAgent identifies the client to the hOn cloud
func UserAgent() string {
	return "hon-client/" + Version
}
