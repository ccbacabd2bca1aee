package types

const redactedPlaceholder = "***REDACTED***"

var redactedJSON = []byte(`"***REDACTED***"`)

// SecretString holds a credential (webhook signing secret, DSN, API key).
// fmt and encoding/json only ever see a redacted placeholder.
type SecretString string

func (s SecretString) String() string {
	return redactedPlaceholder
}

func (s SecretString) MarshalJSON() ([]byte, error) {
	return redactedJSON, nil
}

// Unmask returns the plaintext. Call it only where the raw value is handed
// to a client or driver.
func (s SecretString) Unmask() string {
	return string(s)
}

// IsZero reports whether no secret is configured.
func (s SecretString) IsZero() bool {
	return s == ""
}
