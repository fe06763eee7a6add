package globals

import (
	"context"
	"os"
)

var (
	JwtSecret = []byte(Getenv("JWT_SECRET", "your_secret_key"))
	// Signs the QR payload handed to visitors; independent of JwtSecret.
	QRSecret = []byte(Getenv("QR_SECRET", "your-very-secret-key"))
)

// Context keys
type ContextKey string

const RoleKey ContextKey = "role"
const UserIDKey ContextKey = "userId"

var Ctx = context.Background()

func Getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
