package slug

import (
	"strings"
	"testing"
)

func TestSlugify(t *testing.T) {
	cases := map[string]string{
		"Loan Disbursement":  "loan_disbursement",
		"  Loan EMI ":        "loan_emi",
		"opening_balance":    "opening_balance",
		"Bi-weekly -- plan!": "bi_weekly_plan",
		"":                   "",
	}
	for in, want := range cases {
		if got := Slugify(in); got != want {
			t.Fatalf("Slugify(%q) = %q, want %q", in, got, want)
		}
	}
	long := Slugify(strings.Repeat("ab ", 40))
	if len(long) > 40 || strings.HasSuffix(long, "_") {
		t.Fatalf("bad long slug %q", long)
	}
}

func TestIsSlug(t *testing.T) {
	if !IsSlug("loan_emi") || IsSlug("Loan EMI") || IsSlug("x") {
		t.Fatalf("IsSlug mismatch")
	}
}
