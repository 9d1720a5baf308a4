/**
 * @description
 * Input normalization and validation for bank account registration and
 * amendment. Validation is deterministic and runs before any mutating
 * repository call, so a failed validation never leaves a partial transaction.
 */
package app

import "strings"

const ifscCodeLength = 11

// normalizeAndValidateIFSC uppercases and validates a routing code. The code
// is exactly 11 characters: a 4-letter bank code followed by alphanumerics.
func normalizeAndValidateIFSC(input string) (string, error) {
	code := strings.ToUpper(strings.TrimSpace(input))
	if len(code) != ifscCodeLength {
		return "", invalidInput("ifsc_code must be exactly %d characters", ifscCodeLength)
	}
	for i, r := range code {
		switch {
		case i < 4:
			if r < 'A' || r > 'Z' {
				return "", invalidInput("ifsc_code must start with a 4-letter bank code")
			}
		default:
			if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
				return "", invalidInput("ifsc_code may only contain letters and digits")
			}
		}
	}
	return code, nil
}

// normalizeAndValidateAccountNumber trims and validates an account number.
func normalizeAndValidateAccountNumber(input string) (string, error) {
	number := strings.TrimSpace(input)
	if number == "" {
		return "", invalidInput("account_number is required")
	}
	if len(number) < 4 || len(number) > 18 {
		return "", invalidInput("account_number must be between 4 and 18 digits")
	}
	for _, r := range number {
		if r < '0' || r > '9' {
			return "", invalidInput("account_number may only contain digits")
		}
	}
	return number, nil
}

// validVerificationMode reports whether the mode is one of the known values.
func validVerificationMode(mode string) bool {
	return mode == "manual" || mode == "e_verification"
}

// validAccountType reports whether the type is one of the known values.
func validAccountType(accountType string) bool {
	return accountType == "savings" || accountType == "current" || accountType == "credit"
}
