package risk

// Curated vocabularies for the rule-based detectors. Lists are intentionally
// short and high-precision; recall comes from the combination of detectors
// and user-history heuristics, not from an exhaustive dictionary.

// profanityTerms are matched token-by-token so "class" never trips on "ass".
var profanityTerms = []string{
	"shit",
	"fuck",
	"fucking",
	"bitch",
	"bastard",
	"asshole",
	"dick",
	"piss",
	"crap",
}

// spamPhrases are matched as substrings of the lower-cased corpus.
var spamPhrases = []string{
	"buy now",
	"click here",
	"limited time",
	"act now",
	"order now",
	"risk free",
	"make money fast",
	"100% free",
	"double your",
	"earn cash",
	"free money",
	"no obligation",
	"winner winner",
	"work from home",
}

// suspiciousTerms cover illegal or malicious-activity vocabulary.
var suspiciousTerms = []string{
	"hack",
	"hacking",
	"hacked",
	"crack",
	"cracked",
	"stolen",
	"steal",
	"fraud",
	"scam",
	"phishing",
	"counterfeit",
	"launder",
	"laundering",
	"malware",
	"ransomware",
	"exploit",
	"forged",
}
