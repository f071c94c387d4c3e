package teerr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsTransientStatus(t *testing.T) {
	cases := map[int]bool{
		408: true, 429: true, 500: true, 502: true, 503: true, 504: true,
		200: false, 400: false, 401: false, 404: false, 422: false,
	}
	for status, want := range cases {
		assert.Equal(t, want, IsTransientStatus(status), "status %d", status)
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("boom")
	err := Transport(cause)
	assert.ErrorIs(t, err, cause)
}

func TestPermanentHTTP_CarriesStatusCode(t *testing.T) {
	err := PermanentHTTP(404, errors.New("not found"))
	assert.Equal(t, 404, err.StatusCode)
	assert.Equal(t, KindPermanentHTTP, err.Kind)
}
