package models

// Currency is the display currency of an account's subscriptions.
type Currency string

const (
	CurrencyUSD Currency = "USD"
	CurrencyEUR Currency = "EUR"
	CurrencyGBP Currency = "GBP"
	CurrencyCAD Currency = "CAD"
	CurrencyAUD Currency = "AUD"
)

func (c Currency) Valid() bool {
	switch c {
	case CurrencyUSD, CurrencyEUR, CurrencyGBP, CurrencyCAD, CurrencyAUD:
		return true
	default:
		return false
	}
}

type Notifications struct {
	Email bool
	Push  bool
}

type Preferences struct {
	Currency      Currency
	Notifications Notifications
}

// DefaultPreferences are assigned to every new account.
func DefaultPreferences() Preferences {
	return Preferences{
		Currency: CurrencyUSD,
		Notifications: Notifications{
			Email: true,
			Push:  true,
		},
	}
}

// PreferencesUpdate is a partial change; nil and empty fields are kept.
type PreferencesUpdate struct {
	Currency           Currency
	EmailNotifications *bool
	PushNotifications  *bool
}

// ProfileUpdate is a partial change of the profile; empty fields are kept.
type ProfileUpdate struct {
	Name        string
	Email       string
	Preferences *PreferencesUpdate
}

// Apply merges u into p and reports whether anything changed.
func (u PreferencesUpdate) Apply(p *Preferences) bool {
	changed := false

	if u.Currency != "" && u.Currency != p.Currency {
		p.Currency = u.Currency
		changed = true
	}
	if u.EmailNotifications != nil && *u.EmailNotifications != p.Notifications.Email {
		p.Notifications.Email = *u.EmailNotifications
		changed = true
	}
	if u.PushNotifications != nil && *u.PushNotifications != p.Notifications.Push {
		p.Notifications.Push = *u.PushNotifications
		changed = true
	}

	return changed
}
