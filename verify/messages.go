package verify

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Progress messages are catalog keys; English is the key itself.
var progressTranslations = map[language.Tag]map[string]string{
	language.German: {
		"Verifying signature %d of %d...":      "Signatur %d von %d wird geprüft...",
		"Verifying signature validity...":      "Gültigkeit der Signatur wird geprüft...",
		"Checking document integrity...":       "Integrität des Dokuments wird geprüft...",
		"Checking certificate...":              "Zertifikat wird geprüft...",
		"Verifying certificate trust...":       "Vertrauenswürdigkeit des Zertifikats wird geprüft...",
		"Checking revocation status (OCSP)...": "Sperrstatus wird geprüft (OCSP)...",
		"Applying certification rules...":      "Zertifizierungsregeln werden angewendet...",
	},
	language.Dutch: {
		"Verifying signature %d of %d...":      "Handtekening %d van %d wordt gecontroleerd...",
		"Verifying signature validity...":      "Geldigheid van de handtekening wordt gecontroleerd...",
		"Checking document integrity...":       "Integriteit van het document wordt gecontroleerd...",
		"Checking certificate...":              "Certificaat wordt gecontroleerd...",
		"Verifying certificate trust...":       "Vertrouwen in het certificaat wordt gecontroleerd...",
		"Checking revocation status (OCSP)...": "Intrekkingsstatus wordt gecontroleerd (OCSP)...",
		"Applying certification rules...":      "Certificeringsregels worden toegepast...",
	},
}

func init() {
	for tag, entries := range progressTranslations {
		for key, msg := range entries {
			_ = message.SetString(tag, key, msg)
		}
	}
}
