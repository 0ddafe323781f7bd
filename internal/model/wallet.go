package model

import "time"

// User is an application user inside a realm. Login holds the hex
// ciphertext of the login, never the plaintext.
type User struct {
	ID          string    `db:"user_id"`
	Realm       string    `db:"realm"`
	Login       string    `db:"user_login"`
	CreatedDate time.Time `db:"created_date"`
}

// Account is a custodial Ethereum account. Address is stored without 0x.
type Account struct {
	ID           string    `db:"account_id"`
	UserID       string    `db:"user_id"`
	Address      string    `db:"account_address"`
	Name         string    `db:"account_name"`
	EncryptedKey string    `db:"encrypted_key"` // keystore v3 JSON
	Salt         string    `db:"salt"`          // hex
	CreatedDate  time.Time `db:"created_date"`
}

// Keystore is the encrypted key of an account plus the salt its secret is
// derived with. Read-only after account creation.
type Keystore struct {
	EncryptedKey string `db:"encrypted_key"`
	Salt         string `db:"salt"`
}

// AccountInfo is the public part of an account as listed to its owner.
type AccountInfo struct {
	Address     string    `db:"account_address"`
	Name        string    `db:"account_name"`
	CreatedDate time.Time `db:"created_date"`
}
