package acseg

// Version is the release of this module.  Builds can override it with
// -ldflags "-X github.com/janelia-flyem/acseg/acseg.Version=...".
var Version = "0.1.0"
