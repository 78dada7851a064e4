package models

// Health is the liveness document.
type Health struct {
	Status  HealthStatus           `json:"status"`
	Time    Timestamp              `json:"time"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// SystemStatus reports routing providers and the path store.
type SystemStatus struct {
	Status    HealthStatus     `json:"status"`
	Time      Timestamp        `json:"time"`
	Providers []ProviderStatus `json:"providers"`
	Store     StoreStatus      `json:"store"`
	Network   NetworkStatus    `json:"network"`
	Tiers     []TierStatus     `json:"tiers"`
}

// TierStatus describes one routing tier.
type TierStatus struct {
	Tier           string `json:"tier"`
	Provider       string `json:"provider"`
	RequiresUnlock bool   `json:"requiresUnlock"`
	// Available is false for a locked tier that no passkey can unlock.
	Available bool `json:"available"`
}

// ProviderStatus is the circuit breaker view of one routing provider.
type ProviderStatus struct {
	Provider            string       `json:"provider"`
	Status              HealthStatus `json:"status"`
	CircuitState        string       `json:"circuitState"`
	Requests            uint32       `json:"requests"`
	ConsecutiveFailures uint32       `json:"consecutiveFailures"`
	LastSuccessAt       *Timestamp   `json:"lastSuccessAt,omitempty"`
	LastFailureAt       *Timestamp   `json:"lastFailureAt,omitempty"`
	Message             *string      `json:"message,omitempty"`
}

// StoreStatus summarises the path store.
type StoreStatus struct {
	Backend  string         `json:"backend"`
	Status   HealthStatus   `json:"status"`
	Entries  int            `json:"entries"`
	ByState  map[string]int `json:"byState,omitempty"`
	Capacity int            `json:"capacity,omitempty"`
	TTL      string         `json:"ttl,omitempty"`
}

// NetworkStatus summarises the loaded network.
type NetworkStatus struct {
	Loaded     bool       `json:"loaded"`
	Facilities int        `json:"facilities"`
	Legs       int        `json:"legs"`
	LoadedAt   *Timestamp `json:"loadedAt,omitempty"`
}
