package labour

import (
	"github.com/kieran-gray/fern-labour-sub001/pkg/validators"
	"golang.org/x/text/unicode/norm"
)

// NormalizeText NFC-normalizes free-text fields (labour names, update
// messages, invite emails) before they are persisted, so two visually
// identical strings entered with different Unicode compositions compare
// equal (SPEC_FULL.md §1).
func NormalizeText(s string) string {
	return norm.NFC.String(s)
}

// ValidateLabourName checks the optional labour display name.
func ValidateLabourName(name string) *validators.ValidationResult {
	if name == "" {
		return validators.NewValidationResult(true, "labour_name", validators.WithValidationCode(validators.ValidationCodeSuccess))
	}
	return validators.ValidateStringLength(NormalizeText(name), "labour_name", 1, 100)
}

// ValidateUpdateMessage checks a labour update's free-text message.
func ValidateUpdateMessage(message string) *validators.ValidationResult {
	return validators.ValidateStringLength(NormalizeText(message), "message", 1, 2000)
}

// ValidateInviteEmail checks a SendLabourInvite recipient.
func ValidateInviteEmail(email string) *validators.ValidationResult {
	return validators.ValidateEmail("invite_email", NormalizeText(email))
}

// ValidateContractionIntensity checks the optional 1-10 intensity scale.
func ValidateContractionIntensity(intensity int) *validators.ValidationResult {
	if intensity == 0 {
		return validators.NewValidationResult(true, "intensity", validators.WithValidationCode(validators.ValidationCodeSuccess))
	}
	if intensity < 1 || intensity > 10 {
		return validators.NewValidationResult(false, "intensity",
			validators.WithMessage("Intensity must be between 1 and 10"),
			validators.WithSuggestedAction("Provide an intensity between 1 and 10, or omit it"),
			validators.WithValidationCode(validators.ValidationCodeInvalid),
		)
	}
	return validators.NewValidationResult(true, "intensity", validators.WithValidationCode(validators.ValidationCodeSuccess))
}
