/*
Package user contains core data structures related to account identity and presence.

It defines the durable account record kept by the store and the presence entry
reported to clients in user lists and by the ops API.
*/
package user

// Account is a registered chat identity as persisted by the store.
type Account struct {
	// Username is the canonical, case-preserving account name.
	Username string `json:"username"`

	// Email is the address one-time codes are delivered to.
	Email string `json:"email"`

	// Password is the stored credential in the form produced by the configured password policy.
	Password string `json:"password"`
}

// Presence pairs a registered username with its current online flag.
// Fields use JSON tags for serialization in the ops API.
type Presence struct {
	// Username is the canonical account name.
	Username string `json:"username"`

	// Online reports whether a session is currently joined under this name.
	Online bool `json:"online"`
}
