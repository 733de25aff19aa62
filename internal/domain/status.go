package domain

// FanStatus is the subscription state of a fan relative to one account.
// Exactly one status holds at any time.
type FanStatus string

const (
	StatusSubscribed   FanStatus = "subscribed"
	StatusUnsubscribed FanStatus = "unsubscribed"
	StatusBlocked      FanStatus = "blocked"
)

// Valid reports whether s is one of the known statuses.
func (s FanStatus) Valid() bool {
	switch s {
	case StatusSubscribed, StatusUnsubscribed, StatusBlocked:
		return true
	}
	return false
}

// Gender mirrors the WeChat sex field.
type Gender int

const (
	GenderUnknown Gender = 0
	GenderMale    Gender = 1
	GenderFemale  Gender = 2
)

// GenderFromInt maps a raw API value onto a Gender, defaulting to unknown.
func GenderFromInt(v int) Gender {
	switch v {
	case 1:
		return GenderMale
	case 2:
		return GenderFemale
	default:
		return GenderUnknown
	}
}

func (g Gender) String() string {
	switch g {
	case GenderMale:
		return "male"
	case GenderFemale:
		return "female"
	default:
		return "unknown"
	}
}
