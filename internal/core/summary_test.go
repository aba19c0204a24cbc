package core

import (
	"testing"

	"github.com/shopspring/decimal"
)

func tx(owner string, typ TxType, amount int64, cat Category) Transaction {
	return Transaction{OwnerID: owner, Type: typ, Amount: decimal.NewFromInt(amount), Category: cat}
}

func TestSummarize(t *testing.T) {
	txs := []Transaction{
		tx("A", In, 1000, Food),
		tx("A", Out, 200, Food),
		tx("B", Out, 300, Transport),
	}
	s := Summarize(txs, "A")
	checks := []struct {
		name string
		got  decimal.Decimal
		want int64
	}{
		{"OwnIn", s.OwnIn, 1000},
		{"OwnOut", s.OwnOut, 200},
		{"OtherIn", s.OtherIn, 0},
		{"OtherOut", s.OtherOut, 300},
		{"Net", s.Net, 500},
		{"MySpending", s.MySpending, 200},
		{"PartnerSpending", s.PartnerSpending, 300},
	}
	for _, c := range checks {
		if !c.got.Equal(decimal.NewFromInt(c.want)) {
			t.Errorf("%s = %s, want %d", c.name, c.got, c.want)
		}
	}
	if s.Count != 3 {
		t.Errorf("Count = %d, want 3", s.Count)
	}
	if got := FormatDecimal(s.Net); got != "₹500.00" {
		t.Errorf("formatted net = %q", got)
	}
}

func TestSummarizeEmpty(t *testing.T) {
	s := Summarize(nil, "A")
	if !s.Net.IsZero() || s.Count != 0 || !s.MySpending.IsZero() || !s.PartnerSpending.IsZero() {
		t.Fatalf("expected zero summary, got %+v", s)
	}
}

func TestSummarizeNegativeNet(t *testing.T) {
	s := Summarize([]Transaction{tx("A", Out, 1500, Bills)}, "A")
	if got := FormatDecimal(s.Net); got != "₹-1,500.00" {
		t.Fatalf("net = %q", got)
	}
}

func TestSummarizeIsPure(t *testing.T) {
	txs := []Transaction{tx("A", In, 10, Food), tx("B", Out, 4, Food)}
	first := Summarize(txs, "A")
	second := Summarize(txs, "A")
	if !first.Net.Equal(second.Net) || first.Count != second.Count {
		t.Fatalf("summaries differ: %+v vs %+v", first, second)
	}
}

func TestPartition(t *testing.T) {
	txs := []Transaction{tx("A", In, 1, Food), tx("B", Out, 2, Food), tx("A", Out, 3, Food)}
	own, other := Partition(txs, "A")
	if len(own) != 2 || len(other) != 1 {
		t.Fatalf("own=%d other=%d", len(own), len(other))
	}
	if !own[1].Amount.Equal(decimal.NewFromInt(3)) {
		t.Fatalf("order not preserved")
	}
}

func TestBreakdownByCategory(t *testing.T) {
	txs := []Transaction{
		tx("A", Out, 100, Food),
		tx("B", Out, 50, Food),
		tx("A", In, 999, Transport),
		tx("A", Out, 50, Bills),
	}
	got := BreakdownByCategory(txs)
	if len(got) != 2 {
		t.Fatalf("expected 2 buckets, got %+v", got)
	}
	if got[0].Name != Food || !got[0].Amount.Equal(decimal.NewFromInt(150)) {
		t.Errorf("first bucket %+v", got[0])
	}
	if got[1].Name != Bills || !got[1].Amount.Equal(decimal.NewFromInt(50)) {
		t.Errorf("second bucket %+v", got[1])
	}
	if got[0].Percent != 75 || got[1].Percent != 25 {
		t.Errorf("percents %v %v", got[0].Percent, got[1].Percent)
	}
}

func TestBreakdownByCategoryOnlyIncome(t *testing.T) {
	if got := BreakdownByCategory([]Transaction{tx("A", In, 5, Food)}); len(got) != 0 {
		t.Fatalf("expected no buckets, got %+v", got)
	}
}

func TestBreakdownSkipsZeroBuckets(t *testing.T) {
	txs := []Transaction{tx("A", Out, 0, Health), tx("A", Out, 10, Food)}
	got := BreakdownByCategory(txs)
	if len(got) != 1 || got[0].Name != Food {
		t.Fatalf("unexpected buckets %+v", got)
	}
}
