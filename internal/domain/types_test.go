package domain

import "testing"

func TestNormalizeTicker(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"spy", "SPY"},
		{" qqq ", "QQQ"},
		{"TLT/ief", "TLT/IEF"},
		{"", ""},
		{"   ", ""},
	}
	for _, tc := range cases {
		if got := NormalizeTicker(tc.in); got != tc.want {
			t.Errorf("NormalizeTicker(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestSplitRatio(t *testing.T) {
	num, den, ok := SplitRatio("TLT/IEF")
	if !ok || num != "TLT" || den != "IEF" {
		t.Errorf("SplitRatio(TLT/IEF) = %q, %q, %v", num, den, ok)
	}

	for _, plain := range []string{"SPY", "/IEF", "TLT/", "", "SPY/TLT/IEF", "A//B"} {
		if _, _, ok := SplitRatio(plain); ok {
			t.Errorf("SplitRatio(%q) = true, want false", plain)
		}
	}
}
