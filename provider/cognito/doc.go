// Package cognito implements session.IdentityClient on an Amazon Cognito user
// pool app client using the AWS SDK for Go v2.
//
// The app client must allow the USER_PASSWORD_AUTH and REFRESH_TOKEN_AUTH
// flows and must not have a client secret. Service errors are classified by
// their error code:
//
//	NotAuthorizedException     invalid credentials, or session invalid when
//	                           raised by refresh, user lookup or sign out
//	UserNotConfirmedException  account not confirmed
//	CodeMismatchException      invalid confirmation code
//	ExpiredCodeException       invalid confirmation code
//	TooManyRequestsException   service unavailable
//
// The Cognito code is kept as "code" metadata on the returned error, so a
// caller can tell an expired code from a mismatch through
// session.Context.LastErrorCode.
//
// Transport failures and 5xx responses are reported as service unavailable.
package cognito
