// Package auth issues and validates the bearer tokens accepted by the local
// API.
//
// Tokens are HS256 JWTs signed with the configured secret. There are no user
// accounts: a token names its holder in the subject and carries a role.
// Viewers may read panels, history and the change stream; controllers may
// also submit commands.
//
//	tok, err := auth.IssueToken("kitchen-tablet", auth.RoleController, secret, 24*time.Hour)
//	claims, err := auth.ParseToken(tok, secret)
package auth
