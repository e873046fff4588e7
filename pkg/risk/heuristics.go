package risk

import "time"

// CertificateProfile computes a certificate's risk profile from its
// full ledger event history plus any listing-audit events touching it,
// per §4.E's certificate heuristics table. It is a deterministic pure
// function of its inputs.
func CertificateProfile(certID string, events []LedgerEvent, auditEvents []ListingAuditEvent, now time.Time) Profile {
	var reasons []RiskReason
	score := 0

	transfers24h := 0
	var transfersWindow []LedgerEvent
	for _, e := range events {
		if e.Kind != "TRANSFER" {
			continue
		}
		if now.Sub(e.OccurredAt) <= 24*time.Hour {
			transfers24h++
		}
		if now.Sub(e.OccurredAt) <= 48*time.Hour {
			transfersWindow = append(transfersWindow, e)
		}
	}

	switch {
	case transfers24h >= 5:
		score += 40
		reasons = append(reasons, RiskReason{Code: "TRANSFER_VELOCITY_CRITICAL", ScoreImpact: 40,
			Message: "5 or more transfers in the last 24 hours", Evidence: transfers24h})
	case transfers24h >= 3:
		score += 25
		reasons = append(reasons, RiskReason{Code: "TRANSFER_VELOCITY_ELEVATED", ScoreImpact: 25,
			Message: "3 or more transfers in the last 24 hours", Evidence: transfers24h})
	}

	if hasWashLoop(transfersWindow) {
		score += 30
		reasons = append(reasons, RiskReason{Code: "WASH_LOOP_PATTERN", ScoreImpact: 30,
			Message: "two transfers within 48 hours reverse each other's direction"})
	}

	cancellations7d := 0
	for _, a := range auditEvents {
		if a.CertID == certID && a.Type == "CANCELLED" && now.Sub(a.OccurredAt) <= 7*24*time.Hour {
			cancellations7d++
		}
	}
	switch {
	case cancellations7d >= 4:
		score += 35
		reasons = append(reasons, RiskReason{Code: "CANCELLATION_PRESSURE_CRITICAL", ScoreImpact: 35,
			Message: "4 or more listing cancellations touching this certificate in the last 7 days", Evidence: cancellations7d})
	case cancellations7d >= 2:
		score += 20
		reasons = append(reasons, RiskReason{Code: "CANCELLATION_PRESSURE_ELEVATED", ScoreImpact: 20,
			Message: "2 or more listing cancellations touching this certificate in the last 7 days", Evidence: cancellations7d})
	}

	clamped := ClampScore(score)
	return Profile{Target: certID, CertID: certID, Score: clamped, Level: Level(clamped), Reasons: reasons, UpdatedAt: now}
}

// hasWashLoop reports whether any two TRANSFERs within the window have
// first.from == second.to and first.to == second.from.
func hasWashLoop(transfers []LedgerEvent) bool {
	for i := range transfers {
		for j := range transfers {
			if i == j {
				continue
			}
			a, b := transfers[i], transfers[j]
			if a.From == b.To && a.To == b.From && a.From != "" && a.To != "" {
				return true
			}
		}
	}
	return false
}

// ListingProfile computes a listing's risk profile from its audit
// history, per §4.E's listing heuristics table.
func ListingProfile(listingID string, audit []ListingAuditEvent, now time.Time) Profile {
	var reasons []RiskReason
	score := 0

	lockedCount, cancelledCount := 0, 0
	var lastCancelled *ListingAuditEvent
	for i := range audit {
		switch audit[i].Type {
		case "LOCKED":
			lockedCount++
		case "CANCELLED":
			cancelledCount++
			if lastCancelled == nil || audit[i].OccurredAt.After(lastCancelled.OccurredAt) {
				e := audit[i]
				lastCancelled = &e
			}
		}
	}

	if lockedCount >= 1 && cancelledCount >= 1 {
		score += 35
		reasons = append(reasons, RiskReason{Code: "LOCK_CANCEL_PATTERN", ScoreImpact: 35,
			Message: "listing was locked and later cancelled"})
	}
	if lockedCount >= 2 {
		score += 15
		reasons = append(reasons, RiskReason{Code: "MULTIPLE_LOCK_ATTEMPTS", ScoreImpact: 15,
			Message: "listing was locked 2 or more times", Evidence: lockedCount})
	}
	if lastCancelled != nil {
		if reason, ok := lastCancelled.Details["reason"].(string); ok && reason == "buyer_timeout" {
			score += 10
			reasons = append(reasons, RiskReason{Code: "BUYER_TIMEOUT_SIGNAL", ScoreImpact: 10,
				Message: "latest cancellation was due to buyer timeout"})
		}
		if lastCancelled.Actor != "" {
			actorCancellations := 0
			for _, a := range audit {
				if a.Type == "CANCELLED" && a.Actor == lastCancelled.Actor && now.Sub(a.OccurredAt) <= 7*24*time.Hour {
					actorCancellations++
				}
			}
			if actorCancellations >= 3 {
				score += 30
				reasons = append(reasons, RiskReason{Code: "ACTOR_REPEAT_CANCELLATION", ScoreImpact: 30,
					Message: "actor has 3 or more cancellations in the last 7 days", Evidence: actorCancellations})
			}
		}
	}

	clamped := ClampScore(score)
	return Profile{Target: listingID, Score: clamped, Level: Level(clamped), Reasons: reasons, UpdatedAt: now}
}

// ReconciliationAlertScore computes the proportional score for a
// reconciliation alert ingest.
func ReconciliationAlertScore(absMismatchGram, thresholdGram float64) int {
	if thresholdGram <= 0 {
		return 100
	}
	raw := int((absMismatchGram / thresholdGram) * 100)
	return ClampScore(raw)
}
