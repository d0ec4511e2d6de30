package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseParam(t *testing.T) {
	name, values, err := parseParam("alpha_max=0.1, 0.3,0.5")
	require.NoError(t, err)
	assert.Equal(t, "alpha_max", name)
	assert.Equal(t, []float64{0.1, 0.3, 0.5}, values)

	for _, bad := range []string{"alpha_max", "=1,2", "noise=", "noise=0.1,x"} {
		_, _, err := parseParam(bad)
		assert.Error(t, err, bad)
	}
}
