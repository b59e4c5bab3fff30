package session

import (
	"testing"
)

// FuzzRecordDecode exercises the binary record decoder with arbitrary
// inputs. Goal: no panics, graceful error handling.
func FuzzRecordDecode(f *testing.F) {
	rec := &Record{
		UserID:    "user1",
		TokenHash: [32]byte{1, 2, 3},
		CreatedAt: 1700000000,
		ExpiresAt: 1700003600,
	}
	encoded, err := Encode(rec)
	if err == nil {
		f.Add(encoded)
	}

	// Empty and short inputs.
	f.Add([]byte{})
	f.Add([]byte{0})
	f.Add([]byte{1})
	f.Add([]byte{255, 255, 255})

	// Truncated at various offsets.
	if len(encoded) > 33 {
		f.Add(encoded[:33])
	}
	if len(encoded) > 81 {
		f.Add(encoded[:81])
	}

	f.Fuzz(func(t *testing.T, data []byte) {
		// Must not panic. Errors are expected for malformed input.
		r, err := Decode(data)
		if err != nil {
			return
		}
		if _, err := Encode(r); err != nil {
			t.Fatalf("re-encode of decoded record failed: %v", err)
		}
	})
}
