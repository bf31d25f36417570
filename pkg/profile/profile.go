// Package profile classifies a session's accumulated messages into a scam
// family. The label rides along in final reports and events so analysts can
// slice extracted intelligence by campaign type.
package profile

import (
	"sort"
	"strings"
)

// Family is a scam campaign category.
type Family string

const (
	BankingFraud Family = "banking_fraud"
	TechSupport  Family = "tech_support"
	Lottery      Family = "lottery"
	Romance      Family = "romance"
	JobOffer     Family = "job_offer"
	Unknown      Family = "unknown"
)

// familyMarkers maps each family to the vocabulary that indicates it.
// Scores are simple distinct-marker counts; ties resolve alphabetically
// so classification stays deterministic.
var familyMarkers = map[Family][]string{
	BankingFraud: {"kyc", "otp", "account blocked", "debit card", "net banking", "upi", "refund", "suspended", "verify your account"},
	TechSupport:  {"virus", "malware", "remote access", "anydesk", "teamviewer", "microsoft", "license expired", "computer problem", "tech support"},
	Lottery:      {"lottery", "prize", "winner", "lucky draw", "jackpot", "claim your", "congratulations", "processing fee"},
	Romance:      {"my love", "darling", "lonely", "meet you", "medical emergency", "stuck abroad", "trust me", "miss you"},
	JobOffer:     {"work from home", "part time", "earn daily", "registration fee", "job offer", "hiring", "salary", "telegram task"},
}

// Classify scores the combined messages against every family's markers and
// returns the strongest match with its distinct-marker count. Zero hits
// yields Unknown.
func Classify(messages []string) (Family, int) {
	text := strings.ToLower(strings.Join(messages, " "))

	type scored struct {
		family Family
		hits   int
	}
	var scores []scored
	for family, markers := range familyMarkers {
		hits := 0
		for _, m := range markers {
			if strings.Contains(text, m) {
				hits++
			}
		}
		if hits > 0 {
			scores = append(scores, scored{family, hits})
		}
	}
	if len(scores) == 0 {
		return Unknown, 0
	}

	sort.Slice(scores, func(i, j int) bool {
		if scores[i].hits != scores[j].hits {
			return scores[i].hits > scores[j].hits
		}
		return scores[i].family < scores[j].family
	})
	return scores[0].family, scores[0].hits
}
