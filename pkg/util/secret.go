package util

import (
	"golang.org/x/crypto/bcrypt"
)

const bcryptCost = 12

// HashSecret hashes a device pairing secret
func HashSecret(secret string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(secret), bcryptCost)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

// VerifySecret checks a plain pairing secret against its hash
func VerifySecret(hashedSecret, secret string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hashedSecret), []byte(secret))
	return err == nil
}
