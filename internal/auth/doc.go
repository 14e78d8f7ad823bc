// Package auth provides bearer-token authentication for the draft API.
//
// Tokens are HS256 JWTs signed with auth.jwt_secret (at least 32 bytes). The
// "sub" claim names the caller and the optional "roles" claim carries roles;
// "admin" or "owner" unlocks destructive routes such as draft deletion.
//
//	v, err := auth.NewJWTVerifier([]byte(secret))
//	token, err := v.Generate("tablet-03", []string{"admin"}, 24*time.Hour)
//
// HTTPAuthMiddleware verifies the token and stores an AuthContext in the
// request context; RequireAdminHTTP gates a handler on the admin roles.
// Rejections are logged at WARN with a "reason" attribute.
package auth
