package common

import "github.com/segmentio/fasthash/fnv1a"

// Hash32 returns the 32-bit FNV-1a hash of s.
func Hash32(s string) uint32 {
	return fnv1a.HashString32(s)
}
