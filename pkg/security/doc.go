/*
Package security provides the two cryptographic primitives the hush protocol
needs: signing/verifying hush requests with HMAC-SHA1 (Signer), and minting
unpredictable session ids for newly-active local alarms (RandomSessionID).

Both are deliberately narrow. There is no certificate authority, no TLS, and
no persistent key storage here — a node's hush key arrives out of band
(pairing, provisioning) and lives only in memory for the lifetime of the
Signer that was constructed with it.
*/
package security
