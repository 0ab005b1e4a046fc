package model

// Notification types registered for the gm dApp.
const (
	TypeHourly = "gm_hourly"
	TypeManual = "eb35fbb8-9b71-4b9e-be3f-62a246e6c992"
)

// DefaultScopes is the scope set offered to a new subscription.
func DefaultScopes() map[string]Scope {
	return map[string]Scope{
		TypeHourly: {Enabled: true, Description: "Hourly gm"},
		TypeManual: {Enabled: true, Description: "Manual"},
	}
}

// TestNotification is the manual "gm!" message sent from the inbox view.
func TestNotification(account string) SendRequest {
	return SendRequest{
		Accounts: []string{account},
		Notification: Notification{
			Title: "gm!",
			Body:  "This is a test notification",
			Icon:  "https://gm.walletconnect.com/gm.png",
			URL:   "https://gm.walletconnect.com/",
			Type:  TypeManual,
		},
		FriendlyType: "Manual",
	}
}
