package sign

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSigner_RoundTrip(t *testing.T) {
	s := New("shared-secret")
	fields := Fields{Type: "request", Conversation: 1, Source: "agent-a", Payload: "hello"}

	sig, err := s.Sign(fields)
	require.NoError(t, err)

	ok, err := s.Verify(fields, sig)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSigner_MutatedFieldFailsVerification(t *testing.T) {
	s := New("shared-secret")
	fields := Fields{Type: "request", Conversation: 1, Source: "agent-a", Payload: "hello"}

	sig, err := s.Sign(fields)
	require.NoError(t, err)

	cases := []Fields{
		{Type: "response", Conversation: 1, Source: "agent-a", Payload: "hello"},
		{Type: "request", Conversation: 2, Source: "agent-a", Payload: "hello"},
		{Type: "request", Conversation: 1, Source: "agent-b", Payload: "hello"},
		{Type: "request", Conversation: 1, Source: "agent-a", Payload: "goodbye"},
	}
	for _, c := range cases {
		ok, err := s.Verify(c, sig)
		require.NoError(t, err)
		assert.False(t, ok, "mutated field should fail verification: %+v", c)
	}
}

func TestSigner_MutatedSignatureFailsVerification(t *testing.T) {
	s := New("shared-secret")
	fields := Fields{Type: "request", Conversation: 1, Source: "agent-a", Payload: "hello"}

	sig, err := s.Sign(fields)
	require.NoError(t, err)

	mutated := sig[:len(sig)-1] + "x"
	ok, err := s.Verify(fields, mutated)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSigner_MalformedSignature(t *testing.T) {
	s := New("shared-secret")
	ok, err := s.Verify(Fields{Type: "request"}, "not-a-valid-signature")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSigner_DifferentSaltsDisagree(t *testing.T) {
	fields := Fields{Type: "request", Conversation: 1, Source: "agent-a", Payload: "hello"}
	sig, err := New("salt-one").Sign(fields)
	require.NoError(t, err)

	ok, err := New("salt-two").Verify(fields, sig)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSigner_Enabled(t *testing.T) {
	assert.True(t, New("x").Enabled())
	assert.False(t, New("").Enabled())
	var nilSigner *Signer
	assert.False(t, nilSigner.Enabled())
}

func TestSigner_NoncesAreUnique(t *testing.T) {
	s := New("salt")
	fields := Fields{Type: "request", Conversation: 1, Source: "a", Payload: nil}

	sig1, err := s.Sign(fields)
	require.NoError(t, err)
	sig2, err := s.Sign(fields)
	require.NoError(t, err)

	assert.NotEqual(t, sig1, sig2, "each signature should carry a fresh nonce")
}
