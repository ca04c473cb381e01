// Package auth implements the session and role core for a multi-tenant
// learning platform: sign-in orchestration, tenant role resolution, login
// throttling, subscription gating, account activation, and the HTTP surface
// that exposes them.
//
// Role resolution:
//   - RoleResolver derives one of four closed roles (producer, company,
//     collaborator, student) from tenant membership records, in a fixed
//     precedence order. Resolution never fails outward; any miss or error
//     degrades to student. Results live in a TTL RoleCache keyed by
//     identity id and can be force-refreshed after mutations.
//
// Session lifecycle:
//   - SignInOrchestrator gates credentials behind LoginThrottle, dispatches
//     on an optional role hint (producer checks active status, company may
//     bootstrap a missing auth user via a privileged remote function), and
//     resolves the role before handing back a SignInResult.
//   - SignOutOrchestrator clears local state first and always returns a nil
//     error; the SignOutPath value reports what actually happened upstream.
//   - SessionManager composes both plus the SubscriptionMonitor into an
//     observable SessionState with change listeners.
//
// Activity sinks:
//   - ActivitySink is the append-only audit emitter used by every
//     orchestrator. Sinks run best-effort (errors are logged and counted)
//     so auditing can never block or fail an authentication flow.
//
// Credential stores:
//   - CredentialStore abstracts the identity backend. LocalCredentialStore
//     is the Bun/bcrypt implementation; provider/gotrue talks to a hosted
//     auth API and validates its tokens via JWKS.
package auth
