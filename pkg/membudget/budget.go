// Package membudget enforces the resource-exhaustion cap from the index
// reconciler's error taxonomy and sizes the embedded store's cache from
// detected system memory.
//
// The engine's per-section serialized payload (timeindex + timespans,
// §4.5) must stay under a soft cap; exceeding it is a fatal "resource
// exhaustion" error for the current file, not a reason to truncate or
// silently drop data. SerializationCap implements that check.
// AutoSizeSQLiteCache derives the embedded backend's mmap_size/cache_size
// pragmas from detected system memory.
package membudget

import (
	"errors"
	"fmt"

	"github.com/eunmann/mseedindex/pkg/sysmem"
)

// DefaultSerializationCapBytes is the §7 "resource exhaustion" soft cap on
// a single section's serialized timeindex+timespans payload.
const DefaultSerializationCapBytes = 8 * 1024 * 1024 // 8 MiB

// ErrSerializationTooLarge is returned by SerializationCap.Check when a
// section's encoded payload exceeds the configured cap. Callers should
// classify this as engine.ClassResource and abort the current file.
type ErrSerializationTooLarge struct {
	SourceID string
	Size     int
	Cap      int
}

func (e *ErrSerializationTooLarge) Error() string {
	return fmt.Sprintf("section %s: serialized timeindex/timespans is %d bytes, exceeds cap of %d bytes", e.SourceID, e.Size, e.Cap)
}

// SerializationCap bounds the encoded size of a section's timeindex and
// timespans columns before they are handed to a store backend.
type SerializationCap struct {
	maxBytes int
}

// NewSerializationCap creates a cap. A non-positive maxBytes falls back
// to DefaultSerializationCapBytes.
func NewSerializationCap(maxBytes int) SerializationCap {
	if maxBytes <= 0 {
		maxBytes = DefaultSerializationCapBytes
	}
	return SerializationCap{maxBytes: maxBytes}
}

// Check returns an error if encoded (the serialized timeindex or
// timespans bytes for one section) exceeds the cap. The zero value of
// SerializationCap checks against DefaultSerializationCapBytes.
func (c SerializationCap) Check(sourceID string, encoded []byte) error {
	maxBytes := c.maxBytes
	if maxBytes <= 0 {
		maxBytes = DefaultSerializationCapBytes
	}
	if len(encoded) > maxBytes {
		return &ErrSerializationTooLarge{SourceID: sourceID, Size: len(encoded), Cap: maxBytes}
	}
	return nil
}

// SQLiteCacheSizing holds pragma values derived from detected system RAM.
type SQLiteCacheSizing struct {
	// MmapSizeBytes is the value for PRAGMA mmap_size.
	MmapSizeBytes int64
	// CacheSizeKB is the cache size in KB for PRAGMA cache_size.
	CacheSizeKB int
	// Reliable indicates whether system RAM was actually detected, or a
	// conservative fallback was used.
	Reliable bool
}

// DefaultMmapSizeBytes and DefaultCacheSizeKB are used when system RAM
// detection is unreliable.
const (
	DefaultMmapSizeBytes = 256 * 1024 * 1024
	DefaultCacheSizeKB   = 256 * 1024
)

// AutoSizeSQLiteCache derives mmap_size/cache_size pragma values from a
// fraction of detected total system RAM, capped at reasonable maximums so
// a single embedded-store connection never claims an unreasonable share
// of memory on a large machine. fraction outside (0,1] falls back to 0.05.
func AutoSizeSQLiteCache(fraction float64) SQLiteCacheSizing {
	if fraction <= 0 || fraction > 1 {
		fraction = 0.05
	}

	result := sysmem.Total()
	if !result.Reliable {
		return SQLiteCacheSizing{
			MmapSizeBytes: DefaultMmapSizeBytes,
			CacheSizeKB:   DefaultCacheSizeKB,
			Reliable:      false,
		}
	}

	budget := uint64(float64(result.TotalBytes) * fraction)

	const maxMmap = 2 * 1024 * 1024 * 1024 // 2 GiB ceiling
	mmap := budget
	if mmap > maxMmap {
		mmap = maxMmap
	}
	if mmap < DefaultMmapSizeBytes {
		mmap = DefaultMmapSizeBytes
	}

	cacheKB := int(mmap / 1024)
	if cacheKB < DefaultCacheSizeKB {
		cacheKB = DefaultCacheSizeKB
	}

	return SQLiteCacheSizing{
		MmapSizeBytes: int64(mmap),
		CacheSizeKB:   cacheKB,
		Reliable:      true,
	}
}

// ParseHumanSize parses a human-readable size string (e.g., "4GiB",
// "512MB") into a byte count.
// Supported suffixes: B, KB, KiB, MB, MiB, GB, GiB, TB, TiB.
func ParseHumanSize(s string) (uint64, error) {
	if s == "" {
		return 0, errors.New("empty size string")
	}

	numEnd := 0
	for i, c := range s {
		if (c < '0' || c > '9') && c != '.' {
			numEnd = i
			break
		}
		numEnd = i + 1
	}

	numStr := s[:numEnd]
	suffix := s[numEnd:]

	var num float64
	if _, err := fmt.Sscanf(numStr, "%f", &num); err != nil {
		return 0, fmt.Errorf("invalid number: %s", numStr)
	}

	var multiplier float64
	switch suffix {
	case "", "B":
		multiplier = 1.0
	case "KB":
		multiplier = 1000
	case "KiB", "K":
		multiplier = 1024
	case "MB":
		multiplier = 1000 * 1000
	case "MiB", "M":
		multiplier = 1024 * 1024
	case "GB":
		multiplier = 1000 * 1000 * 1000
	case "GiB", "G":
		multiplier = 1024 * 1024 * 1024
	case "TB":
		multiplier = 1000 * 1000 * 1000 * 1000
	case "TiB", "T":
		multiplier = 1024 * 1024 * 1024 * 1024
	default:
		return 0, fmt.Errorf("unknown size suffix: %s", suffix)
	}

	return uint64(num * multiplier), nil
}
