// Package partitionkey names the cache partition of the running deployment.
package partitionkey

import (
	"os"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Environment variables checked for a deployment identifier, in order.
var EnvVars = []string{"AUTOCACHE_DEPLOYMENT_ID", "DEPLOYMENT_ID"}

// Resolve returns the first non-empty deployment identifier found with lookupEnv.
// If there is none, a new identifier is created with newID.
func Resolve(lookupEnv func(string) (string, bool), newID func() string) string {
	for _, name := range EnvVars {
		if id, ok := lookupEnv(name); ok && strings.TrimSpace(id) != "" {
			return strings.TrimSpace(id)
		}
	}
	return newID()
}

var defaultKey = sync.OnceValue(func() string {
	return Resolve(os.LookupEnv, uuid.NewString)
})

// Default returns the partition key of this process.
// It is resolved on first use and stays the same afterwards.
func Default() string {
	return defaultKey()
}
