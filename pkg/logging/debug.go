package logging

// DebugEnable is a string passed in by the compiler to control the build's
// inclusion of Debuggable sections.
var DebugEnable string

// Debuggable means that the build should include any debugging logic in it.
// Archive extraction and remote fetches log per-entry detail when set.
var Debuggable = DebugEnable != ""
