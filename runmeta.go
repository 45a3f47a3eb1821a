// Package runmeta records processing-tool runs and writes them as
// metadata documents.
package runmeta

// Version is the runmeta release.
const Version = "0.1.0"
