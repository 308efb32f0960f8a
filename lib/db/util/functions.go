package util

// --------------------------------------------------------------------------
// Hash Functions
// --------------------------------------------------------------------------

const (
	fnvOffset64 = 14695981039346656037
	fnvPrime64  = 1099511628211
)

// HashBytes hashes b with FNV-1a, starting from seed mixed into the offset basis.
// A seed of 0 yields plain FNV-1a.
func HashBytes(b []byte, seed uint64) uint64 {
	hash := uint64(fnvOffset64) ^ seed
	for _, c := range b {
		hash ^= uint64(c)
		hash *= fnvPrime64
	}
	return hash
}

// HashString is HashBytes for strings without the conversion copy.
func HashString(s string, seed uint64) uint64 {
	hash := uint64(fnvOffset64) ^ seed
	for i := 0; i < len(s); i++ {
		hash ^= uint64(s[i])
		hash *= fnvPrime64
	}
	return hash
}

// Mix combines two hashes so that Mix(a, b) != Mix(b, a) in general.
func Mix(a, b uint64) uint64 {
	return (a ^ (b + 0x9e3779b97f4a7c15 + (a << 6) + (a >> 2))) * fnvPrime64
}
