// Package cluster groups card transactions by merchant.
//
// Descriptions are first bucketed by a short hash of their leading characters,
// then each bucket is labelled with the longest prefix shared by all of its
// distinct descriptions. Labelling needs the complete record set: adding a
// record to a bucket can shorten that bucket's label.
package cluster

import (
	"crypto/sha256"
	"encoding/hex"
	"slices"

	"github.com/argent-dev/argent/internal/model"
)

const (
	// KeyPrefixRunes is how many leading characters of a description are hashed.
	KeyPrefixRunes = 4
	// KeyLength is the number of hex characters kept from the digest.
	KeyLength = 10
)

// Bucket is the set of distinct descriptions sharing one bucket key.
type Bucket struct {
	Key     string
	Members []string // sorted
	Label   string
}

// BucketKey returns the first KeyLength hex characters of the SHA-256 digest of
// the description's first KeyPrefixRunes characters.
//
// Truncation makes collisions between unrelated prefixes possible. That is an
// accepted limitation; lengthening the key changes clustering results.
func BucketKey(description string) string {
	runes := []rune(description)
	if len(runes) > KeyPrefixRunes {
		runes = runes[:KeyPrefixRunes]
	}
	sum := sha256.Sum256([]byte(string(runes)))
	return hex.EncodeToString(sum[:])[:KeyLength]
}

// Resolve returns the longest common prefix of all descriptions, compared
// character by character. It panics on an empty set: every bucket is built
// from at least one record.
func Resolve(descriptions []string) string {
	if len(descriptions) == 0 {
		panic("cluster: resolve called with an empty bucket")
	}

	members := make([][]rune, len(descriptions))
	maxLen := 0
	for i, d := range descriptions {
		members[i] = []rune(d)
		maxLen = max(maxLen, len(members[i]))
	}

	best := 0
	for n := 1; n <= maxLen; n++ {
		if !agreeUpTo(members, n) {
			break
		}
		best = n
	}
	return string(members[0][:best])
}

// agreeUpTo reports whether every member has the same length-n prefix, given
// that they already share the length-(n-1) prefix. A member shorter than n
// never agrees.
func agreeUpTo(members [][]rune, n int) bool {
	first := members[0]
	if len(first) < n {
		return false
	}
	for _, m := range members[1:] {
		if len(m) < n || m[n-1] != first[n-1] {
			return false
		}
	}
	return true
}

// Buckets groups the distinct descriptions of records by bucket key and
// resolves each bucket's label. Buckets are returned in the order their key
// first appears in records.
func Buckets(records []model.CardTransaction) []Bucket {
	index := make(map[string]int)
	seen := make(map[string]bool)
	var buckets []Bucket

	for _, r := range records {
		key := BucketKey(r.Description)
		i, ok := index[key]
		if !ok {
			i = len(buckets)
			index[key] = i
			buckets = append(buckets, Bucket{Key: key})
		}
		if seen[r.Description] {
			continue
		}
		seen[r.Description] = true
		buckets[i].Members = append(buckets[i].Members, r.Description)
	}

	for i := range buckets {
		slices.Sort(buckets[i].Members)
		buckets[i].Label = Resolve(buckets[i].Members)
	}
	return buckets
}

// Cluster returns a copy of records, in the same order, with every record
// labelled by its bucket's group label.
func Cluster(records []model.CardTransaction) []model.CardTransaction {
	labels := make(map[string]string)
	for _, b := range Buckets(records) {
		labels[b.Key] = b.Label
	}

	out := make([]model.CardTransaction, len(records))
	for i, r := range records {
		out[i] = r.WithGroup(labels[BucketKey(r.Description)])
	}
	return out
}
