// Package config loads each service's environment-variable surface
// into a small typed struct. There is no config file format; every
// value is read once at process start, per the protocol's "process-
// scoped, read once at init" rule for shared secrets and policy.
package config

import (
	"os"
	"strconv"
)

// CertAuthority holds component D's configuration.
type CertAuthority struct {
	Port                string
	DBPath              string
	IssuerPrivateKeyHex string
	LedgerAdapterURL    string
	ServiceAuthToken    string
}

// LoadCertAuthority reads component D's env surface.
func LoadCertAuthority() CertAuthority {
	return CertAuthority{
		Port:                getEnv("PORT", "8081"),
		DBPath:              getEnv("CERT_DB_PATH", "cert-authority.db"),
		IssuerPrivateKeyHex: getEnv("ISSUER_PRIVATE_KEY_HEX", ""),
		LedgerAdapterURL:    getEnv("LEDGER_ADAPTER_URL", ""),
		ServiceAuthToken:    getEnv("SERVICE_AUTH_TOKEN", ""),
	}
}

// LedgerAdapter holds component C's configuration.
type LedgerAdapter struct {
	Port               string
	DBPath             string
	RiskStreamURL      string
	ChainRPCURL        string
	ChainPrivateKey    string
	DGCRegistryAddress string
	ChainID            int64
	ServiceAuthToken   string
}

// LoadLedgerAdapter reads component C's env surface. LEDGER_DB_PATH is
// not named in the protocol's env list (the adapter's local store is
// an addition resolving its one open durability question); it defaults
// so the adapter still runs with no configuration at all, matching
// every other service's zero-config-required default.
func LoadLedgerAdapter() LedgerAdapter {
	return LedgerAdapter{
		Port:               getEnv("PORT", "8082"),
		DBPath:             getEnv("LEDGER_DB_PATH", "ledger.db"),
		RiskStreamURL:      getEnv("RISK_STREAM_URL", ""),
		ChainRPCURL:        getEnv("CHAIN_RPC_URL", ""),
		ChainPrivateKey:    getEnv("CHAIN_PRIVATE_KEY", ""),
		DGCRegistryAddress: getEnv("DGC_REGISTRY_ADDRESS", ""),
		ChainID:            getEnvInt64("CHAIN_ID", 1),
		ServiceAuthToken:   getEnv("SERVICE_AUTH_TOKEN", ""),
	}
}

// Marketplace holds component H's configuration.
type Marketplace struct {
	Port                     string
	DBPath                   string
	CertificateServiceURL    string
	RiskStreamURL            string
	ReconciliationServiceURL string
	DisputeServiceURL        string
	ServiceAuthToken         string
}

// LoadMarketplace reads component H's env surface.
func LoadMarketplace() Marketplace {
	return Marketplace{
		Port:                     getEnv("PORT", "8083"),
		DBPath:                   getEnv("MARKETPLACE_DB_PATH", "marketplace.db"),
		CertificateServiceURL:    getEnv("CERTIFICATE_SERVICE_URL", ""),
		RiskStreamURL:            getEnv("RISK_STREAM_URL", ""),
		ReconciliationServiceURL: getEnv("RECONCILIATION_SERVICE_URL", ""),
		DisputeServiceURL:        getEnv("DISPUTE_SERVICE_URL", ""),
		ServiceAuthToken:         getEnv("SERVICE_AUTH_TOKEN", ""),
	}
}

// RiskEngine holds component E's configuration.
type RiskEngine struct {
	Port             string
	DBPath           string
	AlertThreshold   int
	AlertWebhookURL  string
	ServiceAuthToken string
}

// LoadRiskEngine reads component E's env surface.
func LoadRiskEngine() RiskEngine {
	return RiskEngine{
		Port:             getEnv("PORT", "8084"),
		DBPath:           getEnv("RISK_DB_PATH", "risk.db"),
		AlertThreshold:   getEnvInt("RISK_ALERT_THRESHOLD", 60),
		AlertWebhookURL:  getEnv("RISK_ALERT_WEBHOOK_URL", ""),
		ServiceAuthToken: getEnv("SERVICE_AUTH_TOKEN", ""),
	}
}

// Reconciliation holds component G's configuration.
type Reconciliation struct {
	Port                  string
	DBPath                string
	CertificateServiceURL string
	RiskStreamURL         string
	CustodyTotalGram      string
	MismatchThresholdGram string
	ServiceAuthToken      string
	UnfreezeAllowedRoles  string
}

// LoadReconciliation reads component G's env surface.
func LoadReconciliation() Reconciliation {
	return Reconciliation{
		Port:                  getEnv("PORT", "8085"),
		DBPath:                getEnv("RECON_DB_PATH", "reconciliation.db"),
		CertificateServiceURL: getEnv("CERTIFICATE_SERVICE_URL", ""),
		RiskStreamURL:         getEnv("RISK_STREAM_URL", ""),
		CustodyTotalGram:      getEnv("CUSTODY_TOTAL_GRAM", "0.0000"),
		MismatchThresholdGram: getEnv("RECON_MISMATCH_THRESHOLD_GRAM", "0.0000"),
		ServiceAuthToken:      getEnv("SERVICE_AUTH_TOKEN", ""),
		UnfreezeAllowedRoles:  getEnv("RECON_UNFREEZE_ALLOWED_ROLES", "ops_admin,admin"),
	}
}

// Dispute holds component F's configuration.
type Dispute struct {
	Port                string
	DBPath              string
	ServiceAuthToken    string
	AssignAllowedRoles  string
	ResolveAllowedRoles string
}

// LoadDispute reads component F's env surface.
func LoadDispute() Dispute {
	return Dispute{
		Port:                getEnv("PORT", "8086"),
		DBPath:              getEnv("DISPUTE_DB_PATH", "dispute.db"),
		ServiceAuthToken:    getEnv("SERVICE_AUTH_TOKEN", ""),
		AssignAllowedRoles:  getEnv("DISPUTE_ASSIGN_ALLOWED_ROLES", "ops_admin,ops_agent,admin"),
		ResolveAllowedRoles: getEnv("DISPUTE_RESOLVE_ALLOWED_ROLES", "ops_admin,ops_lead,admin"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}
