// Package principal defines the persisted account record and its storage
// contract. A principal row carries credentials, lockout counters, and the
// single currently-valid refresh token; stores implement atomic rotation
// and failure accounting so the engine never needs read-modify-write.
package principal
