package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/avandenberg/chargeclaim/internal/domain"
	"github.com/joho/godotenv"
)

// Mode selects whether the pipeline actually submits claims.
type Mode string

const (
	ModeLive Mode = "LIVE"
	ModeDry  Mode = "DRY"
)

// Config holds all runtime configuration. Values come from the environment
// (optionally seeded from a .env file); only presence is validated, never
// the semantics of IBAN or country codes.
type Config struct {
	DBPath   string
	LogLevel string
	Mode     Mode

	// Telematics service.
	TelematicsURL string
	InvoiceURL    string
	AuthURL       string
	ClientID      string
	RefreshToken  string
	MaxSessions   int

	// Reimbursement portal.
	PortalURL      string
	PortalUsername string
	PortalPassword string
	LookbackMonths int

	// Claimant.
	IBAN           string
	VIN            string
	DeviceCountry  string
	DeviceLanguage string
	Locale         string

	// Submit attempts per session (transport retries and daily-limit
	// date shifts share this budget).
	SubmitAttempts int
}

// Default returns a Config with sensible defaults. Credentials are empty
// and must be supplied by the environment.
func Default() Config {
	return Config{
		LogLevel:       "info",
		Mode:           ModeLive,
		TelematicsURL:  "https://akamai-apigateway-charging-ownership.tesla.com",
		InvoiceURL:     "https://ownership.tesla.com/mobile-app/charging/invoice",
		AuthURL:        "https://auth.tesla.com/oauth2/v3",
		ClientID:       "ownerapi",
		MaxSessions:    5,
		PortalURL:      "https://mtc.outsystemsenterprise.com",
		LookbackMonths: 6,
		DeviceCountry:  "NL",
		DeviceLanguage: "nl",
		Locale:         "nl_NL",
		SubmitAttempts: 3,
	}
}

// Load reads configuration from a .env file (if present) and the
// environment, falling back to defaults for any unset value.
func Load() (Config, error) {
	// Missing .env is fine; the environment may carry everything.
	_ = godotenv.Load()

	cfg := Default()

	if cfg.DBPath = os.Getenv("CHARGECLAIM_DB"); cfg.DBPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return cfg, fmt.Errorf("finding home directory: %w", err)
		}
		cfg.DBPath = filepath.Join(home, ".chargeclaim", "ledger.db")
	}

	if v := os.Getenv("CHARGECLAIM_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("MODE"); v != "" {
		if Mode(v) == ModeDry {
			cfg.Mode = ModeDry
		} else {
			cfg.Mode = ModeLive
		}
	}

	applyEnv(&cfg.TelematicsURL, "TELEMATICS_API_URL")
	applyEnv(&cfg.InvoiceURL, "TELEMATICS_INVOICE_URL")
	applyEnv(&cfg.AuthURL, "TELEMATICS_AUTH_URL")
	applyEnv(&cfg.ClientID, "TELEMATICS_CLIENT_ID")
	applyEnv(&cfg.RefreshToken, "TELEMATICS_REFRESH_TOKEN")
	applyIntEnv(&cfg.MaxSessions, "MAX_SESSIONS")

	applyEnv(&cfg.PortalURL, "PORTAL_URL")
	applyEnv(&cfg.PortalUsername, "PORTAL_USERNAME")
	applyEnv(&cfg.PortalPassword, "PORTAL_PASSWORD")
	applyIntEnv(&cfg.LookbackMonths, "LOOKBACK_PERIOD")

	applyEnv(&cfg.IBAN, "IBAN")
	applyEnv(&cfg.VIN, "VEHICLE_VIN")
	applyEnv(&cfg.DeviceCountry, "DEVICE_COUNTRY")
	applyEnv(&cfg.DeviceLanguage, "DEVICE_LANGUAGE")
	applyEnv(&cfg.Locale, "TTP_LOCALE")

	applyIntEnv(&cfg.SubmitAttempts, "SUBMIT_ATTEMPTS")

	return cfg, nil
}

// Validate checks that every credential the run needs is present.
func (c Config) Validate() error {
	missing := []string{}
	if c.RefreshToken == "" {
		missing = append(missing, "TELEMATICS_REFRESH_TOKEN")
	}
	if c.VIN == "" {
		missing = append(missing, "VEHICLE_VIN")
	}
	if c.PortalUsername == "" {
		missing = append(missing, "PORTAL_USERNAME")
	}
	if c.PortalPassword == "" {
		missing = append(missing, "PORTAL_PASSWORD")
	}
	if c.IBAN == "" {
		missing = append(missing, "IBAN")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %v", missing)
	}
	return nil
}

// Claimant builds the immutable claimant profile from this configuration.
func (c Config) Claimant() domain.ClaimantProfile {
	return domain.ClaimantProfile{
		IBAN:           c.IBAN,
		VIN:            c.VIN,
		DeviceCountry:  c.DeviceCountry,
		DeviceLanguage: c.DeviceLanguage,
		Locale:         c.Locale,
	}
}

func applyEnv(dst *string, name string) {
	if v := os.Getenv(name); v != "" {
		*dst = v
	}
}

func applyIntEnv(dst *int, name string) {
	v := os.Getenv(name)
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return
	}
	*dst = n
}
