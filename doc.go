// Package auth implements StockFx account verification and the admin
// account lifecycle.
//
// Verification:
//   - Verifier registers accounts as unverified and dispatches a single use
//     secret, either a numeric code or a link token. Only the SHA-256 digest
//     of the secret is stored, along with its expiry and the remaining
//     attempts. Submitting the secret activates the account exactly once,
//     concurrent submissions included.
//   - Authenticate and ExchangeOAuthProfile only let active accounts through,
//     Authenticator turns the result into a bearer token.
//
// Lifecycle:
//   - AccountStateMachine owns the transition graph: unverified -> active,
//     unverified or active -> terminated, terminated -> active, and archived
//     reachable from every other status and terminal. Every transition is a
//     compare and set on the stored status, so a lost race surfaces as
//     ErrStatusConflict instead of a double transition.
//   - Lifecycle executes the admin operations. Each one appends an audit log
//     entry inside the same transaction as the status change.
//
// Activity sinks:
//   - ActivitySink receives registration, verification, login and status
//     change events. Sinks run best-effort (errors are logged) so you can
//     forward to a queue without blocking authentication.
package auth
