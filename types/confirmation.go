package types

// ConfirmationRecord is the value stored under "user:<id>" in the confirmation store.
type ConfirmationRecord struct {
	ConfirmedAt string `json:"confirmed_at" db:"confirmed_at"`
	IPAddress   string `json:"ip_address,omitempty" db:"ip_address"`
}

// PluginStoreRow is a row of the plugin_store_rows table that backs the postgres store.
type PluginStoreRow struct {
	PluginName string `json:"plugin_name" db:"plugin_name"`
	Key        string `json:"key" db:"key"`
	TypeName   string `json:"type_name" db:"type_name"`
	Value      string `json:"value" db:"value"`
}

// CurrentUser is the authenticated-user payload served to clients.
type CurrentUser struct {
	ID                     string  `json:"id"`
	Admin                  bool    `json:"admin"`
	UserConsentConfirmedAt *string `json:"user_consent_confirmed_at,omitempty"`
}

// ConfirmResponse is the body of POST /user-consent/confirm.
type ConfirmResponse struct {
	Success     string `json:"success"`
	ConfirmedAt string `json:"confirmed_at"`
}

// PublicSettings exposes the policy fields clients need to evaluate the gate.
type PublicSettings struct {
	Enabled      bool   `json:"user_consent_enabled"`
	ReaffirmDays int    `json:"user_consent_reaffirm_days"`
	RedirectURL  string `json:"user_consent_redirect_url"`
}

// ConfirmedEvent is published on the bus after a confirmation is stored.
type ConfirmedEvent struct {
	EventID     string `json:"event_id"`
	UserID      string `json:"user_id"`
	ConfirmedAt string `json:"confirmed_at"`
	IPStored    bool   `json:"ip_stored"`
}
