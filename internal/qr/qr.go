package qr

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"io"

	"staybook/internal/models"

	"github.com/skip2/go-qrcode"
)

// Generator renders encrypted check-in QR codes for confirmed
// reservations. The payload is AES-encrypted so a screenshot of the code
// leaks nothing about the guest.
type Generator struct {
	secret []byte
}

func NewGenerator(secret string) *Generator {
	hashed := sha256.Sum256([]byte(secret)) // normalize to 32 bytes
	return &Generator{secret: hashed[:]}
}

type checkInPayload struct {
	ReservationID string      `json:"reservation_id"`
	GuestName     string      `json:"guest_name"`
	CheckIn       models.Date `json:"check_in"`
	CheckOut      models.Date `json:"check_out"`
}

// GenerateEncryptedQR returns a PNG QR image for the reservation.
func (g *Generator) GenerateEncryptedQR(reservation *models.Reservation) ([]byte, error) {
	data, err := json.Marshal(checkInPayload{
		ReservationID: reservation.ID,
		GuestName:     reservation.GuestName,
		CheckIn:       reservation.CheckIn,
		CheckOut:      reservation.CheckOut,
	})
	if err != nil {
		return nil, err
	}

	encrypted, err := encryptAES(data, g.secret)
	if err != nil {
		return nil, err
	}

	return qrcode.Encode(encrypted, qrcode.Medium, 256)
}

func encryptAES(data []byte, key []byte) (string, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}

	ciphertext := make([]byte, aes.BlockSize+len(data))
	iv := ciphertext[:aes.BlockSize]

	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return "", err
	}

	stream := cipher.NewCFBEncrypter(block, iv)
	stream.XORKeyStream(ciphertext[aes.BlockSize:], data)

	return base64.URLEncoding.EncodeToString(ciphertext), nil
}
