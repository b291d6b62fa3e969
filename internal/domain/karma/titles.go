package karma

type rank struct {
	min   int64
	title string
}

// ranks is ordered by strictly increasing threshold.
var ranks = []rank{
	{0, "Decaf"},
	{5, "Drip Regular"},
	{10, "Cortado Courier"},
	{15, "Double Shot"},
	{20, "Espresso Legend"},
}

// TitleFor maps a balance to its rank label.
func TitleFor(balance int64) string {
	title := ranks[0].title
	for _, r := range ranks {
		if balance < r.min {
			break
		}
		title = r.title
	}
	return title
}

// NextRank returns the next title and the balance needed to reach it.
// ok is false at the top rank.
func NextRank(balance int64) (title string, threshold int64, ok bool) {
	for _, r := range ranks {
		if balance < r.min {
			return r.title, r.min, true
		}
	}
	return "", 0, false
}
