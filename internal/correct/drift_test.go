package correct

import "testing"

func TestDriftRatio(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name      string
		raw       string
		corrected string
		want      float64
	}{
		{"identical", "عايز احجز", "عايز احجز", 0},
		{"both empty", "", "", 0},
		{"empty raw nonempty corrected", "", "نص", 1},
		{"single rune edit", "abcd", "abce", 0.25},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := driftRatio(tc.raw, tc.corrected); got != tc.want {
				t.Errorf("driftRatio(%q, %q) = %f, want %f", tc.raw, tc.corrected, got, tc.want)
			}
		})
	}
}

func TestDriftRatio_PunctuationIsSmall(t *testing.T) {
	t.Parallel()

	// A realistic correction (diacritic fixes plus closing punctuation)
	// should stay well under the 0.5 rejection default.
	if got := driftRatio("عايز احجز رحله", "عايز أحجز رحلة."); got > 0.5 {
		t.Errorf("light correction drift = %f, want <= 0.5", got)
	}
}
