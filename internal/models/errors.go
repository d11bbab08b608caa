// Package models holds types shared by the CLI layers.
package models

// RecoverableError is implemented by enriched errors that carry structured
// context and remediation hints, such as *kv.LockTimeoutError. The output
// package matches it structurally, so it never imports a store package.
type RecoverableError interface {
	error
	ErrorCode() string
	Context() map[string]string
	SuggestedAction() string
}
