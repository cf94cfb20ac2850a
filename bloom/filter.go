// Package bloom provides a compact probabilistic set of URLs, used to
// remember pages processed by earlier crawl runs.
package bloom

import "github.com/bits-and-blooms/bloom/v3"

// DefaultFalsePositiveRate is the false positive rate used by FromURLs
// when none is given.
const DefaultFalsePositiveRate = 0.0001

// Filter wraps a Bloom filter for URL membership tests.
type Filter struct {
	f *bloom.BloomFilter
}

// NewFilter creates a new Bloom filter sized for n expected items
// with the given false positive rate.
func NewFilter(n uint, fpRate float64) *Filter {
	if n == 0 {
		n = 1
	}
	return &Filter{
		f: bloom.NewWithEstimates(n, fpRate),
	}
}

// FromURLs builds a filter sized for urls and adds all of them.
// A non-positive fpRate selects DefaultFalsePositiveRate.
func FromURLs(urls []string, fpRate float64) *Filter {
	if fpRate <= 0 {
		fpRate = DefaultFalsePositiveRate
	}
	f := NewFilter(uint(len(urls)), fpRate)
	for _, u := range urls {
		f.Add(u)
	}
	return f
}

// Add adds a URL to the filter.
func (f *Filter) Add(url string) {
	f.f.AddString(url)
}

// Test returns true if the URL might be in the filter.
// False positives are possible; false negatives are not.
func (f *Filter) Test(url string) bool {
	return f.f.TestString(url)
}

// EstimatedCount returns the approximate number of items in the filter.
func (f *Filter) EstimatedCount() uint {
	return uint(f.f.ApproximatedSize())
}
