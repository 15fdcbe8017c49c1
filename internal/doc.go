// Package internal contains helper utilities that are intentionally private
// to goRefresh, currently secure random token generation for the opaque
// verification and reset tokens.
package internal
