// Package logx wraps zerolog behind a small Logger/Field API so the rest
// of the codebase does not import zerolog directly. The Service variant
// supports swapping sinks and level at runtime (config hot reload).
package logx
