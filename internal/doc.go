// Package internal holds cryptographic helpers shared by the engine and the
// refresh store: secret generation and digesting. Nothing here may import a
// sibling package.
package internal
