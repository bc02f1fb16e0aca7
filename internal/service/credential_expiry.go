package service

import "strings"

// credentialExpiredPhrase is the marker the backend uses for an elapsed bearer token.
const credentialExpiredPhrase = "jwt expired"

// IsCredentialExpired reports whether err or any error in its cause chain carries
// the expired-bearer-credential message. Matching is case-insensitive.
// Joined errors are searched depth-first. A nil error is never expired.
func IsCredentialExpired(err error) bool {
	for err != nil {
		if strings.Contains(strings.ToLower(safeMessage(err)), credentialExpiredPhrase) {
			return true
		}
		switch x := err.(type) {
		case interface{ Unwrap() []error }:
			for _, inner := range x.Unwrap() {
				if IsCredentialExpired(inner) {
					return true
				}
			}
			return false
		case interface{ Unwrap() error }:
			err = x.Unwrap()
		default:
			return false
		}
	}
	return false
}

// safeMessage guards against Error methods that panic on typed nil receivers.
func safeMessage(err error) (msg string) {
	defer func() {
		if recover() != nil {
			msg = ""
		}
	}()
	return err.Error()
}
