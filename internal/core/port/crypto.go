package port

// CredentialHasher hashes and verifies account credentials.
type CredentialHasher interface {
	Hash(credential string) (string, error)
	Verify(credential, encoded string) (bool, error)
}

// CredentialPolicy enforces strength requirements on new credentials.
// userInputs are account attributes the credential must not be derived from.
type CredentialPolicy interface {
	Validate(credential string, userInputs ...string) error
}
