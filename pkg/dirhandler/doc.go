// Package dirhandler keeps a single versioned target directory up to date.
//
// A Handler checks the release the remote publishes for its target, installs
// a new version next to the existing ones and stages it as pending. Staged
// versions become current only through Promote, normally run while the
// application using the target is stopped, so an update never swaps files
// out from under a running process.
package dirhandler
