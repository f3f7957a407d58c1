package service

import (
	"fmt"
	"strings"

	"github.com/vanshika/txscreen/internal/domain"
)

// SanctionsPolicy decides whether a strong sanctions match affects status.
type SanctionsPolicy string

const (
	// PolicyIgnore records the screening result without touching status.
	PolicyIgnore SanctionsPolicy = "ignore"
	// PolicyFlag flags transactions with a strong match.
	PolicyFlag SanctionsPolicy = "flag"
	// PolicyReject rejects transactions with a strong match outright.
	PolicyReject SanctionsPolicy = "reject"
)

// ParseSanctionsPolicy parses a configured policy name. Empty means ignore.
func ParseSanctionsPolicy(raw string) (SanctionsPolicy, error) {
	switch p := SanctionsPolicy(strings.ToLower(strings.TrimSpace(raw))); p {
	case "":
		return PolicyIgnore, nil
	case PolicyIgnore, PolicyFlag, PolicyReject:
		return p, nil
	default:
		return "", fmt.Errorf("unknown sanctions policy %q", raw)
	}
}

// Assemble derives the initial status and stored screening result.
func Assemble(checks domain.BusinessRulesChecks, verdict domain.ScreeningVerdict, policy SanctionsPolicy) (domain.Status, domain.ScreeningResult) {
	status := domain.StatusPending
	if checks.Suspicious {
		status = domain.StatusFlagged
	}

	if verdict.Match() {
		switch policy {
		case PolicyFlag:
			status = domain.StatusFlagged
		case PolicyReject:
			status = domain.StatusRejected
		}
	}
	return status, verdict.Result()
}

// syncCheckResult maps the initial status to the audit result.
func syncCheckResult(status domain.Status) string {
	switch status {
	case domain.StatusFlagged:
		return domain.CheckResultFlagged
	case domain.StatusRejected:
		return domain.CheckResultHighRisk
	default:
		return domain.CheckResultClear
	}
}

func syncCheckNotes(checks domain.BusinessRulesChecks, verdict domain.ScreeningVerdict) string {
	reasons := domain.JoinReasonCodes(checks.Reasons)
	if reasons == "" {
		reasons = "none"
	}
	notes := fmt.Sprintf("rules: %s; sanctions: score %.1f similarity %s matches %d",
		reasons, verdict.Score, verdict.Similarity, verdict.MatchCount)
	if verdict.Failed {
		notes += " (screening unavailable)"
	}
	return notes
}
