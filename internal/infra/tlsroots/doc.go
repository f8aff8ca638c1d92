// Package tlsroots loads TLS material for fidloc.
//
//   - roots.go: trust pool for the field client (system roots plus a
//     custom CA file for self-hosted servers)
//   - reloader.go: server key pair that is reloaded when the files change
package tlsroots
