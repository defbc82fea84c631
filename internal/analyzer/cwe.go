package analyzer

// CWE tier multipliers applied before summing security deductions. Tier 0
// covers codes that are almost always noise; tier 1 input validation, XSS,
// SQL and log injection; tier 2 command/code injection, hardcoded
// credentials, and broken crypto.

var cweTier0 = map[string]bool{
	"CWE-703": true,
	"CWE-390": true,
}

var cweTier1 = map[string]bool{
	"CWE-20":  true,
	"CWE-79":  true,
	"CWE-89":  true,
	"CWE-117": true,
}

var cweTier2 = map[string]bool{
	"CWE-78":  true,
	"CWE-94":  true,
	"CWE-259": true,
	"CWE-798": true,
	"CWE-327": true,
}

// CWEWeight returns the tier multiplier for a CWE identifier.
func CWEWeight(cweID string) float64 {
	switch {
	case cweTier0[cweID]:
		return 0.1
	case cweTier1[cweID]:
		return 3
	case cweTier2[cweID]:
		return 2
	default:
		return 1
	}
}

// banditCWEMap maps bandit test ids to CWE identifiers for findings the tool
// reports without one.
var banditCWEMap = map[string]string{
	// Injection
	"B608": "CWE-89",
	"B609": "CWE-78",
	"B602": "CWE-78",
	"B603": "CWE-78",
	"B604": "CWE-78",
	"B605": "CWE-78",
	"B606": "CWE-78",
	"B607": "CWE-78",
	"B601": "CWE-94",
	// Crypto
	"B303": "CWE-327",
	"B304": "CWE-327",
	"B305": "CWE-327",
	// Hardcoded credentials
	"B105": "CWE-259",
	"B106": "CWE-259",
	"B107": "CWE-259",
	// Other secrets / exposure
	"B104": "CWE-798",
	"B108": "CWE-798",
	// XSS / template injection
	"B701": "CWE-79",
	"B702": "CWE-79",
	"B703": "CWE-79",
	// Input validation
	"B301": "CWE-20",
	"B302": "CWE-20",
	"B308": "CWE-20",
	"B611": "CWE-20",
	"B506": "CWE-20",
	// Exec / eval
	"B102": "CWE-94",
	"B307": "CWE-94",
	// Weak randomness
	"B311": "CWE-330",
	// Noise
	"B110": "CWE-390",
	"B101": "CWE-703",
}
