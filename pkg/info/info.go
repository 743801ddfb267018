// Package info carries build information, set with -ldflags -X.
package info

import (
	"fmt"
	"os"

	"github.com/google/uuid"
)

var (
	Version    = "0.0.0"
	Dist       = "1"
	GitRev     = "000000"
	BuildTime  = "2000-01-01_00:00:00"
	InstanceID = uuid.New().String()
)

func init() {
	// VMLEDGER_INSTANCE_ID pins the id
	if id := os.Getenv("VMLEDGER_INSTANCE_ID"); id != "" {
		InstanceID = id
	}
}

// Describe is the one-line build summary printed by -version
func Describe() string {
	return fmt.Sprintf("vmledger %s-%s (%s, built %s) instance %s", Version, Dist, GitRev, BuildTime, InstanceID)
}
