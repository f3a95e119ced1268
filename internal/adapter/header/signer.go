package header

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/olla-run/olla/internal/core/domain"
)

// Signer computes an HMAC-SHA256 signature over a joined set of
// already-built header fields plus a timestamp, using the provider's API
// key as the secret. Called once per attempt so the timestamp stays
// inside the provider's verification window across a retry.
type Signer struct{}

func NewSigner() *Signer { return &Signer{} }

func (s *Signer) Sign(h http.Header, cfg *domain.SignerConfig, secret string) error {
	if cfg.SignatureHeader == "" || cfg.TimestampHeader == "" {
		return fmt.Errorf("header: signer config missing signature/timestamp header name")
	}

	timestamp := strconv.FormatInt(time.Now().Unix(), 10)

	fields := make([]string, 0, len(cfg.HeaderFields)+1)
	for _, name := range cfg.HeaderFields {
		fields = append(fields, h.Get(name))
	}
	fields = append(fields, timestamp)
	data := strings.Join(fields, ":")

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(data))
	signature := hex.EncodeToString(mac.Sum(nil))

	h.Set(cfg.SignatureHeader, signature)
	h.Set(cfg.TimestampHeader, timestamp)
	return nil
}
