package payments

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const transactionIDPrefix = "TRX"

// NewTransactionID mints a payment transaction id: the millisecond timestamp
// followed by 48 random bits from a v4 uuid.
func NewTransactionID(now time.Time) string {
	random := strings.ReplaceAll(uuid.NewString(), "-", "")
	return fmt.Sprintf("%s-%d-%s", transactionIDPrefix, now.UnixMilli(), random[:12])
}
