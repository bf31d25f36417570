package profile

import "testing"

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		messages []string
		want     Family
	}{
		{
			name:     "banking fraud",
			messages: []string{"Your KYC is incomplete", "Share the OTP to unblock UPI"},
			want:     BankingFraud,
		},
		{
			name:     "tech support",
			messages: []string{"We detected a virus on your computer", "Install AnyDesk for remote access"},
			want:     TechSupport,
		},
		{
			name:     "lottery",
			messages: []string{"Congratulations! You are the lucky draw winner", "Pay the processing fee to claim your prize"},
			want:     Lottery,
		},
		{
			name:     "job offer",
			messages: []string{"Work from home and earn daily", "Small registration fee required"},
			want:     JobOffer,
		},
		{
			name:     "no markers",
			messages: []string{"Hello", "How are you"},
			want:     Unknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, hits := Classify(tt.messages)
			if got != tt.want {
				t.Errorf("Classify = %s (%d hits), want %s", got, hits, tt.want)
			}
			if tt.want != Unknown && hits == 0 {
				t.Error("expected at least one marker hit")
			}
		})
	}
}

func TestClassifyAccumulates(t *testing.T) {
	// Markers spread across turns still add up to one family.
	family, hits := Classify([]string{
		"Your account is suspended",
		"Complete KYC now",
		"Share the OTP",
	})
	if family != BankingFraud {
		t.Errorf("family = %s, want banking_fraud", family)
	}
	if hits < 3 {
		t.Errorf("hits = %d, want >= 3", hits)
	}
}
