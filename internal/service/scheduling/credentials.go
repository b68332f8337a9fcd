package scheduling

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
)

// generateQRCode builds the opaque check-in credential. The payload carries
// the client id and booking instant for traceability, plus random bytes so
// two bookings in the same instant never collide.
func generateQRCode(clientID uuid.UUID, bookedAt time.Time) (string, error) {
	nonce := make([]byte, 16)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate qr nonce: %w", err)
	}
	payload := fmt.Sprintf("%s:%d:%s", clientID, bookedAt.UnixMilli(),
		base64.RawURLEncoding.EncodeToString(nonce))
	return base64.RawURLEncoding.EncodeToString([]byte(payload)), nil
}

// generatePIN returns a 6-digit code from a cryptographically secure source.
func generatePIN() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", fmt.Errorf("failed to generate pin: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}
