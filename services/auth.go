package services

import (
	"crypto/subtle"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/zhifu/sumup-terminal/config"
)

// BasicAuthenticator checks Basic Auth credentials against bcrypt hashes.
// Hashes produced by PHP's password_hash ($2y$) are accepted.
type BasicAuthenticator struct {
	realm     string
	users     map[string]string
	dummyHash []byte
}

func NewBasicAuthenticator(realm string, users map[string]string) *BasicAuthenticator {
	if realm == "" {
		realm = config.DefaultRealm
	}
	// unknown users are compared against this so they cost the same as known ones
	dummy, err := bcrypt.GenerateFromPassword([]byte("sumup-terminal-unknown-user"), bcrypt.DefaultCost)
	if err != nil {
		dummy = nil
	}
	return &BasicAuthenticator{realm: realm, users: users, dummyHash: dummy}
}

func (a *BasicAuthenticator) Realm() string {
	return a.realm
}

// Challenge is the WWW-Authenticate header value sent with a 401.
func (a *BasicAuthenticator) Challenge() string {
	realm := strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(a.realm)
	return fmt.Sprintf(`Basic realm="%s", charset="UTF-8"`, realm)
}

// Authenticate reports whether password matches the stored hash of username.
// A stored value that is not a bcrypt hash is compared verbatim in constant time.
func (a *BasicAuthenticator) Authenticate(username, password string) bool {
	stored, ok := a.users[username]
	if !ok || stored == "" {
		if a.dummyHash != nil {
			_ = bcrypt.CompareHashAndPassword(a.dummyHash, []byte(password))
		}
		return false
	}
	if _, err := bcrypt.Cost([]byte(stored)); err == nil {
		return bcrypt.CompareHashAndPassword([]byte(stored), []byte(password)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(password)) == 1
}
