// Package taskconfig owns the task document contract.
//
// Ownership boundary:
// - common envelope shared by every work kind
//
// - closed set of work kinds, their tags, aliases and platforms
//
// - document loading and the setup_dir override
//
// The set of kinds is closed: payload types implement an unexported method,
// so only this package can add a variant. Adding a kind means adding a
// Variant entry and a payload type.
package taskconfig
