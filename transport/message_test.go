package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestType_IsTerminal(t *testing.T) {
	terminal := []Type{TypeResponse, TypeError, TypeAnomaly, TypeEnd}
	for _, typ := range terminal {
		assert.True(t, typ.IsTerminal(), "%s should be terminal", typ)
	}
	assert.False(t, TypeRequest.IsTerminal())
	assert.False(t, TypeMulti.IsTerminal())
}
