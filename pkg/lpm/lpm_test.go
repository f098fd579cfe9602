package lpm

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"strconv"
	"testing"

	"github.com/psaab/gtctl/pkg/aggregate"
)

func prefixes(t *testing.T, ss ...string) []netip.Prefix {
	t.Helper()
	out := make([]netip.Prefix, 0, len(ss))
	for _, s := range ss {
		p, err := netip.ParsePrefix(s)
		if err != nil {
			t.Fatalf("ParsePrefix(%q): %v", s, err)
		}
		out = append(out, p.Masked())
	}
	return out
}

func TestEstimateIPv4(t *testing.T) {
	tests := []struct {
		name  string
		in    []string
		rules int
		tbl8s int
	}{
		{"empty", nil, 0, 0},
		{"short prefixes", []string{"10.0.0.0/8", "10.1.0.0/16", "10.1.2.0/24"}, 3, 0},
		{"one long", []string{"10.0.1.0/25"}, 1, 1},
		{"same /24", []string{"10.0.1.0/25", "10.0.1.128/25", "10.0.1.7/32"}, 3, 1},
		{"two /24s", []string{"10.0.1.0/25", "10.0.2.0/25"}, 2, 2},
		{"mixed", []string{"10.0.0.0/16", "10.0.1.0/25"}, 2, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EstimateIPv4(prefixes(t, tt.in...))
			if got.NumRules != tt.rules || got.NumTbl8s != tt.tbl8s {
				t.Errorf("got %s, want rules=%d, tbl8s=%d", got, tt.rules, tt.tbl8s)
			}
			if got.Family != aggregate.IPv4 {
				t.Errorf("family = %s", got.Family)
			}
		})
	}
}

func TestEstimateIPv4ShortPrefixesNeverNeedTbl8(t *testing.T) {
	for bits := 0; bits <= 24; bits++ {
		p := netip.PrefixFrom(netip.MustParseAddr("203.0.113.0"), bits).Masked()
		if got := EstimateIPv4([]netip.Prefix{p}); got.NumTbl8s != 0 {
			t.Errorf("/%d: tbl8s = %d, want 0", bits, got.NumTbl8s)
		}
	}
}

func TestEstimateIPv4SharedParent(t *testing.T) {
	var in []netip.Prefix
	for i := 0; i < 256; i++ {
		in = append(in, netip.MustParsePrefix("198.51.100."+strconv.Itoa(i)+"/32"))
	}
	got := EstimateIPv4(in)
	if got.NumRules != 256 || got.NumTbl8s != 1 {
		t.Errorf("got %s, want rules=256, tbl8s=1", got)
	}
}

func TestEstimateIPv6(t *testing.T) {
	tests := []struct {
		name  string
		in    []string
		rules int
		tbl8s int
	}{
		{"root only", []string{"2001:db8::/24"}, 1, 0},
		{"short", []string{"2001::/16"}, 1, 0},
		{"/25", []string{"2001:db8::/25"}, 1, 1},
		{"/32", []string{"2001:db8::/32"}, 1, 1},
		{"/48", []string{"2001:db8::/48"}, 1, 3},
		{"/128", []string{"2001:db8::1/128"}, 1, 13},
		{"shared levels", []string{"2001:db8::/48", "2001:db8:100::/48"}, 2, 4},
		{"shared all levels", []string{"2001:db8::/48", "2001:db8:1::/48"}, 2, 3},
		{"disjoint", []string{"2001:db8::/32", "2400:cb00::/32"}, 2, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EstimateIPv6(prefixes(t, tt.in...))
			if got.NumRules != tt.rules || got.NumTbl8s != tt.tbl8s {
				t.Errorf("got %s, want rules=%d, tbl8s=%d", got, tt.rules, tt.tbl8s)
			}
		})
	}
}

func TestEstimateIPv6LevelCount(t *testing.T) {
	for bits := 0; bits <= 128; bits++ {
		p := netip.PrefixFrom(netip.MustParseAddr("2001:db8:ffff:ffff:ffff:ffff:ffff:ffff"), bits).Masked()
		want := 0
		if bits > 24 {
			want = (bits - 24 + 7) / 8
		}
		if got := EstimateIPv6([]netip.Prefix{p}); got.NumTbl8s != want {
			t.Errorf("/%d: tbl8s = %d, want %d", bits, got.NumTbl8s, want)
		}
	}
}

func TestEstimateMemoIsPerCall(t *testing.T) {
	in := prefixes(t, "10.0.1.0/25")
	first := EstimateIPv4(in)
	second := EstimateIPv4(in)
	if first != second {
		t.Errorf("estimates differ across calls: %s vs %s", first, second)
	}
	if got := Estimate(aggregate.IPv6, prefixes(t, "2001:db8::/48")); got.NumTbl8s != 3 || got.Family != aggregate.IPv6 {
		t.Errorf("Estimate(ipv6) = %s (%s)", got, got.Family)
	}
}

func TestParamsOrdering(t *testing.T) {
	tests := []struct {
		a, b Params
		less bool
	}{
		{Params{NumRules: 1, NumTbl8s: 9}, Params{NumRules: 2, NumTbl8s: 0}, true},
		{Params{NumRules: 2, NumTbl8s: 0}, Params{NumRules: 1, NumTbl8s: 9}, false},
		{Params{NumRules: 2, NumTbl8s: 1}, Params{NumRules: 2, NumTbl8s: 2}, true},
		{Params{NumRules: 2, NumTbl8s: 2}, Params{NumRules: 2, NumTbl8s: 2}, false},
	}
	for _, tt := range tests {
		if got := tt.a.Less(tt.b); got != tt.less {
			t.Errorf("%s < %s = %v, want %v", tt.a, tt.b, got, tt.less)
		}
	}
}

func TestParseCurrent(t *testing.T) {
	if _, err := ParseCurrent(""); !errors.Is(err, ErrEmptyResponse) {
		t.Errorf("empty: got %v, want ErrEmptyResponse", err)
	}
	if _, err := ParseCurrent("\n   \n"); !errors.Is(err, ErrEmptyResponse) {
		t.Errorf("blank: got %v, want ErrEmptyResponse", err)
	}

	var pe *ParseError
	if _, err := ParseCurrent("foo"); !errors.As(err, &pe) || pe.Line != "foo" {
		t.Errorf("foo: got %v", err)
	}

	cur, err := ParseCurrent("99:101,102")
	if err != nil {
		t.Fatalf("ParseCurrent: %v", err)
	}
	if len(cur) != 1 || cur[0].NumRules != 101 || cur[0].NumTbl8s != 102 {
		t.Errorf("got %v", cur)
	}

	cur, err = ParseCurrent(`
            0: 1, 2
            2: 5, 6
            1: 3, 4
        `)
	if err != nil {
		t.Fatalf("ParseCurrent: %v", err)
	}
	want := CurrentParams{{NumRules: 1, NumTbl8s: 2}, {NumRules: 3, NumTbl8s: 4}, {NumRules: 5, NumTbl8s: 6}}
	if fmt.Sprint(cur) != fmt.Sprint(want) {
		t.Errorf("got %v, want %v", cur, want)
	}
}

func TestParseCurrentRejectsMalformed(t *testing.T) {
	for _, resp := range []string{
		"42:abc,3",
		"0: 1, 2\n42:abc,3",
		"0: 1",
		"0: 1, 2, 3",
		"-1: 1, 2",
		"0: 99999999999999999999999, 1",
	} {
		_, err := ParseCurrent(resp)
		var pe *ParseError
		if !errors.As(err, &pe) {
			t.Errorf("ParseCurrent(%q) = %v, want ParseError", resp, err)
		}
	}
}

func TestParseCurrentCRLF(t *testing.T) {
	cur, err := ParseCurrent("1: 10, 2\r\n0: 20, 4\r\n")
	if err != nil {
		t.Fatalf("ParseCurrent: %v", err)
	}
	if len(cur) != 2 || cur[0].NumRules != 20 || cur[1].NumRules != 10 {
		t.Errorf("got %v", cur)
	}
}

type fakeSender struct {
	resp string
	err  error
	sent []string
}

func (f *fakeSender) Send(_ context.Context, script string) (string, error) {
	f.sent = append(f.sent, script)
	return f.resp, f.err
}

func TestReadCurrent(t *testing.T) {
	s := &fakeSender{resp: "0: 100, 10\n1: 50, 5\n"}
	cur, err := ReadCurrent(context.Background(), s, aggregate.IPv6, "params.lua")
	if err != nil {
		t.Fatalf("ReadCurrent: %v", err)
	}
	if len(s.sent) != 1 || s.sent[0] != "params.lua" {
		t.Errorf("sent = %v", s.sent)
	}
	if len(cur) != 2 || cur[1].NumRules != 50 || cur[1].Family != aggregate.IPv6 {
		t.Errorf("got %v", cur)
	}

	s = &fakeSender{err: errors.New("boom")}
	if _, err := ReadCurrent(context.Background(), s, aggregate.IPv4, "params.lua"); err == nil {
		t.Error("expected send error")
	}

	s = &fakeSender{resp: ""}
	if _, err := ReadCurrent(context.Background(), s, aggregate.IPv4, "params.lua"); !errors.Is(err, ErrEmptyResponse) {
		t.Errorf("got %v, want ErrEmptyResponse", err)
	}
}

func TestDecideMode(t *testing.T) {
	est := Params{NumRules: 15, NumTbl8s: 15}

	cur := CurrentParams{{NumRules: 10, NumTbl8s: 10}, {NumRules: 20, NumTbl8s: 10}}
	if got := DecideMode(cur, est); got != Replace {
		t.Errorf("got %s, want replace", got)
	}
	cur = CurrentParams{{NumRules: 20, NumTbl8s: 20}, {NumRules: 15, NumTbl8s: 10}}
	if got := DecideMode(cur, est); got != Replace {
		t.Errorf("got %s, want replace", got)
	}
	cur = CurrentParams{{NumRules: 20, NumTbl8s: 20}, {NumRules: 15, NumTbl8s: 15}}
	if got := DecideMode(cur, est); got != Update {
		t.Errorf("got %s, want update", got)
	}
	// Lexicographic: more rules wins over fewer tbl8s.
	cur = CurrentParams{{NumRules: 16, NumTbl8s: 0}}
	if got := DecideMode(cur, est); got != Update {
		t.Errorf("got %s, want update", got)
	}
}

func TestDecideModeMonotonic(t *testing.T) {
	est := Params{NumRules: 4, NumTbl8s: 4}
	for rules := 0; rules < 8; rules++ {
		for tbl8s := 0; tbl8s < 8; tbl8s++ {
			base := DecideMode(CurrentParams{{NumRules: rules, NumTbl8s: tbl8s}}, est)
			for _, bump := range []Params{{NumRules: rules + 1, NumTbl8s: tbl8s}, {NumRules: rules, NumTbl8s: tbl8s + 1}} {
				got := DecideMode(CurrentParams{bump}, est)
				if base == Update && got == Replace {
					t.Errorf("growing (%d,%d) to %s flipped update to replace", rules, tbl8s, bump)
				}
			}
		}
	}
}
