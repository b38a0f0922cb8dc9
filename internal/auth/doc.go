// Package auth provides authentication and authorization for coco-gateway.
//
// # Tokens
//
// Users obtain a token from POST /login and present it either as an
// "Authorization: Bearer" header on HTTP requests or in the token field of a
// WebSocket connect/login message. Tokens are HS256 JWTs whose "sub" claim is
// the user ID:
//
//	verifier, err := auth.NewJWTVerifier(secret)
//	token, err := verifier.Generate(userID, 24*time.Hour)
//	userID, err := verifier.Verify(token)
//
// When no jwt_secret is configured the gateway falls back to PlainTokens,
// where the token is the user ID itself.
//
// # Roles
//
// Users are either standard or privileged. Privileged users manage other
// users and receive user-management broadcasts. The role is read from the
// store on every check, so role changes take effect on the next request.
//
// # Errors
//
//   - ErrMissingCredential: no token supplied (401)
//   - ErrInvalidCredential: forged, expired, or unknown identity (401)
//   - ErrInsufficientRole: identity lacks the required role (403)
//   - ErrRootMismatch: user not authorized for this server's domain root (403)
package auth
