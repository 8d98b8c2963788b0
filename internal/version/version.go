package version

// Version is the analysis pipeline version.
// It is embedded in every Analysis artifact and in cache entries so results
// produced by an older pipeline are never served for a newer one.
const Version = "0.3.0"
