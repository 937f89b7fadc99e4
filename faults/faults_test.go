package faults

import (
	"net/http"
	"testing"

	"github.com/pkg/errors"

	"github.com/siderealabs/ephemerisd/testing/assert"
	"github.com/siderealabs/ephemerisd/testing/require"
)

func TestNew_FillsTitleAndTip(t *testing.T) {
	f := New(CodeRangeOutside, "epoch 3000-01-01 not covered by DE440")
	assert.Equal(t, CodeRangeOutside, f.Code)
	assert.Equal(t, "Epoch outside ephemeris coverage", f.Title)
	assert.StringContains(t, "extended bundle", f.Tip)
}

func TestNew_UnknownCodeCollapsesToInternal(t *testing.T) {
	f := New(Code("BOGUS.CODE"), "whatever")
	assert.Equal(t, CodeInternal, f.Code)
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		code Code
		want int
	}{
		{CodeInputInvalid, http.StatusBadRequest},
		{CodeBodiesUnsupported, http.StatusBadRequest},
		{CodeRangeOutside, http.StatusBadRequest},
		{CodeRateLimited, http.StatusTooManyRequests},
		{CodeOverloaded, http.StatusServiceUnavailable},
		{CodeKernelsCorruption, http.StatusInternalServerError},
		{CodeCompute, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, HTTPStatus(tt.code), "code %s", tt.code)
	}
}

func TestAs_UnwrapsWrappedFault(t *testing.T) {
	inner := New(CodeOverloaded, "queue full")
	wrapped := errors.Wrap(inner, "dispatch")
	f, ok := As(wrapped)
	require.Equal(t, true, ok)
	assert.Equal(t, CodeOverloaded, f.Code)
}

func TestClassifyNative(t *testing.T) {
	tests := []struct {
		in   string
		want Code
	}{
		{"insufficient ephemeris data loaded", CodeRangeOutside},
		{"JD out of range: 62502462.9", CodeRangeOutside},
		{"cannot open de440.bin: no such file or directory", CodeKernelsNotAvailable},
		{"record checksum mismatch at segment 12", CodeKernelsCorruption},
		{"chebyshev interpolation diverged", CodeCompute},
	}
	for _, tt := range tests {
		f := ClassifyNative(errors.New(tt.in))
		assert.Equal(t, tt.want, f.Code, "message %q", tt.in)
	}
}

func TestClassifyNative_KeepsExistingFault(t *testing.T) {
	in := New(CodeAyanamshaRequired, "sidereal request without ayanamsha")
	out := ClassifyNative(errors.Wrap(in, "compute"))
	assert.Equal(t, CodeAyanamshaRequired, out.Code)
}

func TestClassifyNative_NeverLeaksUnknownDetail(t *testing.T) {
	f := ClassifyNative(errors.New("panic: runtime error at sweph.c:991"))
	assert.Equal(t, CodeCompute, f.Code)
	assert.Equal(t, "the ephemeris engine reported an error", f.Detail)
}

func TestClassifyNative_NeverLeaksMatchedDetail(t *testing.T) {
	f := ClassifyNative(errors.New("cannot open /srv/kernels/de440.bin: no such file or directory"))
	assert.Equal(t, CodeKernelsNotAvailable, f.Code)
	assert.Equal(t, "a required ephemeris kernel file is not available", f.Detail)
}
