package grounded

import "testing"

func TestIsRefusal(t *testing.T) {
	t.Parallel()
	cases := []struct {
		text string
		want bool
	}{
		// Exact and near-exact forms of the fixed phrase.
		{"I don't know.", true},
		{"I don't know", true},
		{"i DON'T know!!", true},
		{"I don’t know.", true},
		{"  I   don't\nknow. ", true},
		{`"I don't know."`, true},
		{"", true},

		// Paraphrased refusals.
		{"I do not know.", true},
		{"I don't have enough information to answer that.", true},
		{"I'm sorry, I don't know.", true},
		{"Unfortunately, I cannot answer that.", true},
		{"Sorry, I don't know the answer to that question.", true},
		{"The provided context does not mention Motilal Oswal.", true},
		{"The context doesn't contain details about margin trading fees.", true},
		{"I couldn't find anything about that in the documents.", true},
		{"There is no information about this in the passages.", true},
		{"I am unable to answer based on the given context.", true},
		{"I'm afraid I don't know.", true},
		{"I don't have that information.", true},
		{"The provided documents do not mention this.", true},
		{"That information is not available in the context.", true},
		{"I'm not able to find that in the documents.", true},
		{"Sorry, I can't help with that.", true},
		{"Sorry, unfortunately I do not see that in the passages.", true},

		// Real answers.
		{"To reset your PIN, open Settings and tap Reset PIN [1].", false},
		{"Withdrawals are processed within 24 hours [2].", false},
		{"I know that withdrawals take 24 hours [1].", false},
		{"I don't know the exact fee, but " + longAnswer, false},
		{"I am not sure, but the minimum balance is Rs 500 [1].", false},
		{"I don't have the full schedule, but the delivery fee is zero [2].", false},
	}
	for _, tc := range cases {
		if got := IsRefusal(tc.text); got != tc.want {
			t.Errorf("IsRefusal(%q) = %v, want %v", tc.text, got, tc.want)
		}
	}
}

const longAnswer = "the passages say brokerage on equity delivery is zero, intraday trades are charged " +
	"a flat twenty rupees per executed order, and futures and options follow the same flat fee schedule " +
	"with exchange charges and taxes added on top as listed in passage one [1]."

func TestNormalize(t *testing.T) {
	t.Parallel()
	cases := map[string]string{
		"I Don’t KNOW.":     "i dont know",
		"“Quoted”  text\t!": "quoted text",
		"one-time password": "onetime password",
		"₹20 per order":     "20 per order",
	}
	for in, want := range cases {
		if got := normalize(in); got != want {
			t.Errorf("normalize(%q) = %q, want %q", in, got, want)
		}
	}
}
