package domain

// ClaimantProfile holds the static claimant data every claim is built from.
// It is supplied by configuration and immutable for the process lifetime.
// Country and locale are deliberately pass-through values: the portal treats
// every claim as domestic and nothing here second-guesses that.
type ClaimantProfile struct {
	IBAN           string
	VIN            string
	DeviceCountry  string
	DeviceLanguage string
	Locale         string
}
