package faults

import "strings"

// nativePattern maps a substring of a native engine error message to a
// taxonomy code. Patterns are matched in order; the first hit wins.
type nativePattern struct {
	substr string
	code   Code
}

var nativePatterns = []nativePattern{
	// Insufficient ephemeris data for the requested epoch.
	{"insufficient ephemeris data", CodeRangeOutside},
	{"outside the date range", CodeRangeOutside},
	{"outside of ephemeris range", CodeRangeOutside},
	{"jd out of range", CodeRangeOutside},
	// Kernel availability and integrity.
	{"no such file", CodeKernelsNotAvailable},
	{"file not found", CodeKernelsNotAvailable},
	{"cannot open", CodeKernelsNotAvailable},
	{"checksum", CodeKernelsCorruption},
	{"corrupt", CodeKernelsCorruption},
	{"unexpected eof", CodeKernelsCorruption},
}

// nativeDetails are the user-visible details per classified code. The raw
// engine message never reaches the wire; it may carry file paths and
// internal state.
var nativeDetails = map[Code]string{
	CodeRangeOutside:        "the requested epoch is outside the loaded ephemeris range",
	CodeKernelsNotAvailable: "a required ephemeris kernel file is not available",
	CodeKernelsCorruption:   "an ephemeris kernel file failed its integrity check",
}

// ClassifyNative maps a native engine error to the taxonomy. Errors that
// match no pattern become COMPUTE.EPHEMERIS_ERROR.
func ClassifyNative(err error) *Fault {
	if err == nil {
		return nil
	}
	if f, ok := As(err); ok {
		return f
	}
	msg := strings.ToLower(err.Error())
	for _, p := range nativePatterns {
		if strings.Contains(msg, p.substr) {
			return New(p.code, nativeDetails[p.code])
		}
	}
	return New(CodeCompute, "the ephemeris engine reported an error")
}
