package wire

// Sentinel lines the interpreter thread writes to the worker's own stdout to
// bracket a session's captured output (spec §4.5, §6, §9 "Sentinel-based
// capture"). NewRequestStart is a fixed prefix; the session's hex identifier
// is appended directly after it with no separator. NewRequestEnd stands alone.
const (
	NewRequestStart = "8b588b6fbb7eaa6a66da438c0dc1cced45c9c55cdf1eb137ba133ba1d7d95b5b"
	NewRequestEnd   = "962375a5e9ffb94b822a69902f462e3394b33a51fbd17d9639cd0f6a9640268d"
)
