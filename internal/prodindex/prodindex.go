// Package prodindex implements the sender-assigned product index (C1's
// element type), the bounded blocking index queue (C1), and the persistent
// circular index-to-signature map (C2).
package prodindex

// ProdIndex is a sender-assigned, 32-bit sequence number, unique within one
// sender process lifetime. It wraps modulo 2^32; comparisons within a
// session use Greater, which treats the space as circular.
type ProdIndex uint32

// Next returns the index following i, wrapping at 2^32.
func (i ProdIndex) Next() ProdIndex {
	return i + 1
}

// Greater reports whether i is "after" j in sender order, treating the
// 32-bit index space as circular (half the space ahead counts as greater).
func (i ProdIndex) Greater(j ProdIndex) bool {
	return ProdIndex(i-j) != 0 && ProdIndex(i-j) < (1<<31)
}
