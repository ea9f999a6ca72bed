package metaapi

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOptionsBaseURLInterpolatesDomain(t *testing.T) {
	o := Options{Domain: "agiliumtrade.agiliumtrade.ai"}.withDefaults()
	assert.Equal(t, "https://mt-client-api-v1.agiliumtrade.agiliumtrade.ai", o.baseURL())
}

func TestOptionsWithDefaultsFillsZeroValues(t *testing.T) {
	o := Options{}.withDefaults()
	assert.Equal(t, DefaultApplication, o.Application)
	assert.Equal(t, DefaultDomain, o.Domain)
	assert.Equal(t, DefaultRequestTimeout, o.RequestTimeout)
	assert.Equal(t, DefaultConnectTimeout, o.ConnectTimeout)
}

func TestOptionsWithDefaultsPreservesExplicitValues(t *testing.T) {
	o := Options{Application: "custom-app"}.withDefaults()
	assert.Equal(t, "custom-app", o.Application)
}

func TestRandomClientIDIsHexAndUnique(t *testing.T) {
	a := randomClientID()
	b := randomClientID()
	assert.Len(t, a, 32)
	assert.NotEqual(t, a, b)
}

func TestGenerateRequestIDLengthAndAlphabet(t *testing.T) {
	id := generateRequestID()
	assert.Len(t, id, requestIDLength)
	for _, r := range id {
		assert.Contains(t, requestIDAlphabet, string(r))
	}
}
