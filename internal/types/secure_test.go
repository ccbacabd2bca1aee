package types

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "whsec_live_abcdef123456"

func TestSecretString_Redaction(t *testing.T) {
	s := SecretString(testSecret)

	assert.Equal(t, redactedPlaceholder, s.String())
	assert.NotContains(t, fmt.Sprintf("%s %v %+v", s, s, s), testSecret)

	out, err := json.Marshal(struct {
		Secret SecretString `json:"secret"`
	}{Secret: s})
	require.NoError(t, err)
	assert.JSONEq(t, `{"secret":"***REDACTED***"}`, string(out))
}

func TestSecretString_Unmask(t *testing.T) {
	s := SecretString(testSecret)
	assert.Equal(t, testSecret, s.Unmask())
	assert.False(t, s.IsZero())
	assert.True(t, SecretString("").IsZero())
}
