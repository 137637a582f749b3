package utils

import "hash/fnv"

// FNV64a hashes s with 64-bit FNV-1a. Used to derive stable
// pseudo-random choices from entity ids, e.g. the simulated
// classifier's confidence.
func FNV64a(s string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return h.Sum64()
}
