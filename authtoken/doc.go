// Package authtoken mints Firebase custom tokens and verifies Firebase ID
// tokens and session cookies.
//
// Custom tokens are created by a [CustomTokenFactory] and signed by a
// [Signer]: a [LocalSigner] holding a service account key, an [IAMSigner]
// delegating to the IAM signBlob API, or an [EmulatorSigner] for the Auth
// emulator. Tokens are verified by a [TokenVerifier] against keys from a
// [PublicKeySource], optionally checking revocation through a [UserLookup].
// [Client] wires these together from a [Config].
//
// All errors are of type [*Error]; use the IsXxx functions or [CodeOf] to
// branch on their cause.
package authtoken
