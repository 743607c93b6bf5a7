// Package accounts implements credential and session lifecycle management for
// the marketing-site backend: registration, password login, stateless bearer
// tokens, time-boxed one-time reset codes, role-based authorization, and audit
// logging of privileged actions.
//
// Components:
//   - CredentialStore owns user records and password hashing/verification.
//   - TokenService signs and validates HS256 bearer tokens carrying
//     identity and role claims. Tokens are stateless; there is no server-side
//     revocation list, so privileged operations re-check live account state.
//   - ResetCodeManager issues, verifies, and consumes 6-digit one-time codes
//     with a 15 minute lifetime and an at-most-one-live-code-per-user
//     invariant.
//   - Guard resolves a request's Principal from a bearer token and enforces
//     role and self-action rules at the handler boundary.
//   - ActivitySink is a light-weight audit emitter. Sinks run best-effort
//     (errors are logged) so privileged mutations are never rolled back by a
//     failing audit write.
//
// Persistence is Bun over sqlite/postgres; repositories are built on
// go-repository-bun. The HTTP surface lives in http.go/http_controller.go and
// is mounted on a fiber application by cmd/server.
package accounts
