// Package auth protects the home hub API with a single household password.
//
// The password is stored only as an Argon2id PHC string in configuration.
// A successful login yields a short-lived HS256 JWT that the API accepts as
// a bearer token, or as the token query parameter of the WebSocket upgrade.
//
//	a, err := auth.NewAuthenticator(cfg.Security)
//	token, err := a.Login(password)
//	claims, err := a.Verify(token)
package auth
