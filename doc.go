// Package session is a client side identity session state machine. It drives
// sign-up, account confirmation, sign-in, silent token refresh and sign-out
// against a pluggable IdentityClient, and keeps tokens in a pluggable
// TokenStore.
//
// State machine:
//   - Transition is pure. It takes the current State, a Context and an Event
//     and returns the next state, the updated context and the Effects to run.
//     Guards (ValidateCredentials, ValidateConfirmationCode) return a Verdict;
//     a rejected verdict leaves the state untouched and its field errors are
//     written to Context.ValidationErrors by the transition.
//   - Every remote operation carries an Op sequence number. Settlements whose
//     Op does not match the pending operation are ignored, so a late response
//     never changes a state the machine already left.
//
// Driver:
//   - Machine owns the Context, runs effects on background goroutines and
//     feeds their results back as settlement events. All state changes happen
//     on the goroutine executing Run. Send delivers user intents, Snapshot and
//     Wait observe the machine.
//   - While authenticated a refresh scheduler checks the stored expiry every
//     RefreshInterval and asks for a refresh inside RefreshBuffer. A refresh
//     rejected with KindSessionInvalid signs the user out; other failures keep
//     the session, back off and reach the RefreshErrorHandler.
//
// Errors:
//   - Provider adapters classify failures with NewError. The machine routes on
//     KindOf, never on message text.
//
// Activity and metrics:
//   - ActivitySink receives transition, sign-in, sign-out and refresh events.
//     Sinks run best-effort (errors are logged).
//   - WithMeterProvider records transition, rejection and operation metrics
//     through OpenTelemetry.
package session
