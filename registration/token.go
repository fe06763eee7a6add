package registration

import (
	"strconv"
	"strings"
	"time"

	"festa/utils"
)

// MintQRToken returns a fresh opaque visitor credential: a time-based
// prefix plus a random suffix, upper-cased. Collisions are treated as
// negligible; no check is performed.
func MintQRToken() string {
	prefix := strconv.FormatInt(time.Now().UnixMilli(), 36)
	return strings.ToUpper(prefix + utils.GenerateRandomString(8))
}
