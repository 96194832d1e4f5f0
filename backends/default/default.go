// Package _default includes the default backends, namely SimpleGo and, on unix platforms, mmap.
//
// To use it simply include:
//
//	import _ "github.com/gomlx/syncmem/backends/default"
//
// It also makes SimpleGo the default backend, unless backends.DefaultConfig was already set.
package _default

import (
	"github.com/gomlx/syncmem/backends"
	"github.com/gomlx/syncmem/backends/simplego"
)

func init() {
	if backends.DefaultConfig == "" {
		backends.DefaultConfig = simplego.BackendName
	}
}
