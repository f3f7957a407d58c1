package domain

import "strings"

// ReasonCode identifies the rule that marked a transaction as suspicious.
type ReasonCode string

const (
	ReasonRapidSameAccount   ReasonCode = "RAPID_SAME_ACCOUNT"
	ReasonRapidDiffAccounts  ReasonCode = "RAPID_DIFF_ACCOUNTS"
	ReasonHighRiskCountry    ReasonCode = "HIGH_RISK_COUNTRY"
	ReasonLargeTransaction   ReasonCode = "LARGE_TRANSACTION"
	ReasonRapidShortInterval ReasonCode = "RAPID_SHORT_INTERVAL"
)

var reasonShortCodes = map[ReasonCode]string{
	ReasonRapidSameAccount:   "R01",
	ReasonRapidDiffAccounts:  "R02",
	ReasonHighRiskCountry:    "R03",
	ReasonLargeTransaction:   "R04",
	ReasonRapidShortInterval: "R05",
}

// Code returns the short persisted form (R01..R05).
func (r ReasonCode) Code() string {
	return reasonShortCodes[r]
}

// JoinReasonCodes renders reasons as the comma separated short codes stored
// under businessRulesChecks.suspicionReasons.
func JoinReasonCodes(reasons []ReasonCode) string {
	codes := make([]string, 0, len(reasons))
	for _, r := range reasons {
		if c := r.Code(); c != "" {
			codes = append(codes, c)
		}
	}
	return strings.Join(codes, ",")
}

// ParseReasonCodes is the inverse of JoinReasonCodes. Unknown codes are skipped.
func ParseReasonCodes(joined string) []ReasonCode {
	if strings.TrimSpace(joined) == "" {
		return nil
	}
	var reasons []ReasonCode
	for _, part := range strings.Split(joined, ",") {
		part = strings.TrimSpace(part)
		for reason, code := range reasonShortCodes {
			if code == part || string(reason) == part {
				reasons = append(reasons, reason)
				break
			}
		}
	}
	return reasons
}
