package rediskey

import "fmt"

// Key namespaces shared between the API and the worker.
const (
	UserPrefix           = "user"
	RevokedSessionPrefix = "session:revoked"
	AdSessionPrefix      = "ad:session"
)

func NamespaceKey(namespace, key string) string {
	return fmt.Sprintf("%s:%s", namespace, key)
}

// BuildUserKey returns "user:{userID}"
func BuildUserKey(userID string) string {
	return NamespaceKey(UserPrefix, userID)
}

// BuildRevokedSessionKey returns "session:revoked:{sessionID}"
func BuildRevokedSessionKey(sessionID string) string {
	return NamespaceKey(RevokedSessionPrefix, sessionID)
}

// BuildAdSessionKey returns "ad:session:{userID}:{sessionID}"
func BuildAdSessionKey(userID, sessionID string) string {
	return NamespaceKey(AdSessionPrefix, fmt.Sprintf("%s:%s", userID, sessionID))
}
