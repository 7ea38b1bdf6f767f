// Package auth provides the credentials checks of the telemetry service.
//
// Two independent mechanisms are supported:
//   - HTTP basic auth on the ingress endpoints, checked against Argon2id
//     PHC hashes listed in config (ingress.http.auth.users)
//   - HS256 JWTs for the dashboard WebSocket, signed with security.jwt.secret
//
// Hashes and tokens are minted with the telemetryd hash-password and
// token subcommands.
package auth
