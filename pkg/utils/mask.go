package utils

import "regexp"

var dsnPasswordRegex = regexp.MustCompile(`(:)([^:@/]+)(@)`)

// MaskDSN hides the password of a connection string (postgres://, amqp://, redis://) before logging.
func MaskDSN(dsn string) string {
	return dsnPasswordRegex.ReplaceAllString(dsn, ":***@")
}

// MaskSecret keeps the last four characters of a credential.
func MaskSecret(s string) string {
	if len(s) <= 4 {
		return "****"
	}
	return "****" + s[len(s)-4:]
}
