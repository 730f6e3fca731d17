package matching

import "testing"

func TestRatioScoresProductNames(t *testing.T) {
	cases := []struct {
		name string
		a    string
		b    string
		want int
	}{
		{"identical", "latitude 5520", "latitude 5520", 100},
		{"both empty", "", "", 100},
		{"one empty", "latitude 5520", "", 0},
		{"single substitution", "mouse", "house", 80},
		{"trailing digit off", "latitude 5520", "latitude 5521", 92},
		{"model family", "latitude 5520", "latitude 7420", 85},
		{"disjoint", "abcd", "wxyz", 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Ratio(tc.a, tc.b)
			if got != tc.want {
				t.Fatalf("Ratio(%q, %q) = %d, want %d", tc.a, tc.b, got, tc.want)
			}
		})
	}
}

func TestRatioIsSymmetric(t *testing.T) {
	pairs := [][2]string{
		{"latitude 5520", "latitude 7420"},
		{"elitebook 840 g8", "elitebook 845"},
		{"", "thinkpad"},
	}
	for _, p := range pairs {
		if Ratio(p[0], p[1]) != Ratio(p[1], p[0]) {
			t.Fatalf("Ratio not symmetric for %q / %q", p[0], p[1])
		}
	}
}

func TestRatioUnrelatedStringsStayBelowFuzzyThreshold(t *testing.T) {
	got := Ratio("macbook pro", "thinkpad x1")
	if got >= 80 {
		t.Fatalf("Ratio(macbook pro, thinkpad x1) = %d, expected below 80", got)
	}
}

func TestCleanTextStripsMarkupAndWhitespace(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"  John   Smith ", "john smith"},
		{"<b>Jane</b> Doe", "jane doe"},
		{"Laptop<br/>assigned to\nAung Kyaw", "laptop assigned to aung kyaw"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := CleanText(tc.in); got != tc.want {
			t.Fatalf("CleanText(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
