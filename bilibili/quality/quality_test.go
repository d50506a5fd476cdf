package quality

import "testing"

func TestNormalize(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", Default},
		{"112", "112"},
		{" 80 ", "80"},
		{"32", "32"},
		{"120", "120"},
		{"116", "116"},
		{"74", "74"},
		{"64", "64"},
		{"16", Default},
		{"0112", Default},
		{"+80", Default},
		{"80p", Default},
		{"1080", Default},
		{"abc", Default},
		{"| 64", Default},
	}
	for _, tt := range tests {
		if got := Normalize(tt.in); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestAcceptedSortedAndDescribed(t *testing.T) {
	codes := Accepted()
	if len(codes) != 7 {
		t.Fatalf("Accepted() = %v", codes)
	}
	for i, qn := range codes {
		if i > 0 && codes[i-1] >= qn {
			t.Fatalf("Accepted() not ascending: %v", codes)
		}
		if Describe(qn) == "" {
			t.Errorf("no label for %d", qn)
		}
	}
	if Describe(16) != "" {
		t.Error("unknown code should have no label")
	}
	if Describe(120) != "4K" {
		t.Errorf("Describe(120) = %q", Describe(120))
	}
}
