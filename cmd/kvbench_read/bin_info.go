package main

import (
	"strconv"
	"strings"
)

// Filled in at link time with -ldflags "-X main.GitSHA1=... -X main.GitDirty=...".
var GitSHA1 string = ""
var GitDirty string = "0"

// toolVersion renders the git sha, suffixed with -dirty when the build had
// uncommitted changes.
func toolVersion() string {
	dirtyLines, err := strconv.Atoi(strings.TrimSpace(GitDirty))
	if err == nil && dirtyLines != 0 {
		return GitSHA1 + "-dirty"
	}
	return GitSHA1
}
