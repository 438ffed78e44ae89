// Package credentials loads the client identity used to talk to the server
// and signs outgoing requests with it.
//
// # Key Loading
//
// The client key at client_key may be a PEM encoded PKCS#1 or PKCS#8 RSA key
// or an OpenSSH private key. A missing key file triggers bootstrap
// registration when a validation identity is configured: the validation key
// signs a single client creation request and the key the server issues is
// written to client_key atomically (temp file, fsync, rename), so readers
// never observe a partial file.
//
// # Request Signing
//
// Requests are signed with the server's header authentication protocol,
// version 1.3: a canonical string built from the method, path, body hash,
// timestamp, user id and API version is signed with RSA PKCS#1 v1.5 over
// SHA-256 and carried base64 encoded across X-Ops-Authorization-N headers.
package credentials
