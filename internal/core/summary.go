package core

import "github.com/shopspring/decimal"

// Summary is the balance view of the ledger relative to one participant.
type Summary struct {
	OwnIn           decimal.Decimal `json:"ownIn"`
	OwnOut          decimal.Decimal `json:"ownOut"`
	OtherIn         decimal.Decimal `json:"otherIn"`
	OtherOut        decimal.Decimal `json:"otherOut"`
	Net             decimal.Decimal `json:"netBalance"`
	MySpending      decimal.Decimal `json:"mySpending"`
	PartnerSpending decimal.Decimal `json:"partnerSpending"`
	Count           int             `json:"totalTransactions"`
}

// CategoryAmount is one slice of the spending breakdown.
type CategoryAmount struct {
	Name    Category        `json:"name"`
	Amount  decimal.Decimal `json:"value"`
	Percent float64         `json:"percent"`
}

// Partition splits txs into the records owned by ownerID and everything else,
// preserving order.
func Partition(txs []Transaction, ownerID string) (own, other []Transaction) {
	for _, t := range txs {
		if t.OwnerID == ownerID {
			own = append(own, t)
		} else {
			other = append(other, t)
		}
	}
	return own, other
}

// Summarize computes the household balance as seen by ownerID.
// Net is every IN minus every OUT regardless of owner.
func Summarize(txs []Transaction, ownerID string) Summary {
	s := Summary{
		OwnIn:    decimal.Zero,
		OwnOut:   decimal.Zero,
		OtherIn:  decimal.Zero,
		OtherOut: decimal.Zero,
		Count:    len(txs),
	}
	for _, t := range txs {
		own := t.OwnerID == ownerID
		switch {
		case own && t.Type == In:
			s.OwnIn = s.OwnIn.Add(t.Amount)
		case own && t.Type == Out:
			s.OwnOut = s.OwnOut.Add(t.Amount)
		case t.Type == In:
			s.OtherIn = s.OtherIn.Add(t.Amount)
		case t.Type == Out:
			s.OtherOut = s.OtherOut.Add(t.Amount)
		}
	}
	s.Net = s.OwnIn.Add(s.OtherIn).Sub(s.OwnOut).Sub(s.OtherOut)
	s.MySpending = s.OwnOut
	s.PartnerSpending = s.OtherOut
	return s
}

// BreakdownByCategory sums OUT amounts per category across all owners. Buckets
// appear in first-seen order; IN records and empty buckets are left out.
func BreakdownByCategory(txs []Transaction) []CategoryAmount {
	var out []CategoryAmount
	index := make(map[Category]int)
	total := decimal.Zero
	for _, t := range txs {
		if t.Type != Out {
			continue
		}
		cat := t.Category
		if cat == "" {
			cat = Other
		}
		i, ok := index[cat]
		if !ok {
			i = len(out)
			index[cat] = i
			out = append(out, CategoryAmount{Name: cat, Amount: decimal.Zero})
		}
		out[i].Amount = out[i].Amount.Add(t.Amount)
		total = total.Add(t.Amount)
	}

	result := out[:0]
	for _, b := range out {
		if b.Amount.IsZero() {
			continue
		}
		b.Percent = b.Amount.Div(total).Mul(decimal.NewFromInt(100)).InexactFloat64()
		result = append(result, b)
	}
	return result
}
