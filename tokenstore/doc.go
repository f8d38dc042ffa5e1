// Package tokenstore provides session.TokenStore implementations.
//
// Every store persists the same four entries (access, id and refresh token
// plus the expiry estimate in unix milliseconds) and treats them as a unit:
// a record with only some of the keys is discarded on read. Backends decide
// where the entries live: process memory, a JSON file replaced atomically, a
// bbolt bucket or a redis hash.
package tokenstore
