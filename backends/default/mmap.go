//go:build unix

package _default

import _ "github.com/gomlx/syncmem/backends/mmap"
