package types

import (
	"fmt"
	"strings"
	"sync"

	"github.com/oklog/ulid/v2"
	"github.com/teris-io/shortid"
)

// GenerateUUID returns a k-sortable unique identifier
func GenerateUUID() string {
	return ulid.Make().String()
}

// GenerateUUIDWithPrefix returns a k-sortable unique identifier
// with a prefix ex inv_01HZX5N8T2X3Q0Z9K7W4M6B1CD
func GenerateUUIDWithPrefix(prefix string) string {
	if prefix == "" {
		return GenerateUUID()
	}
	return fmt.Sprintf("%s_%s", prefix, GenerateUUID())
}

var (
	sidGenerator *shortid.Shortid
	once         sync.Once
)

func initializeSID() {
	var err error
	sidGenerator, err = shortid.New(1, shortid.DefaultABC, 2342)
	if err != nil {
		panic("failed to initialize shortid generator: " + err.Error())
	}
}

// GenerateShortID returns an upper-case random token of at most n characters
// with separators stripped, suitable for human-readable references.
func GenerateShortID(n int) string {
	once.Do(initializeSID)

	id, err := sidGenerator.Generate()
	if err != nil {
		return ""
	}
	id = strings.NewReplacer("-", "", "_", "").Replace(id)
	if len(id) > n {
		id = id[:n]
	}
	return strings.ToUpper(id)
}

const (
	UUID_PREFIX_INVOICE   = "inv"
	UUID_PREFIX_PAYMENT   = "pay"
	UUID_PREFIX_PROMOTION = "promo"
	UUID_PREFIX_CLIENT    = "client"
	UUID_PREFIX_PRODUCT   = "prod"
	UUID_PREFIX_MESSAGE   = "msg"
)

const (
	// SHORT_ID_LENGTH_INVOICE_NUMBER is the length of the random invoice number suffix
	SHORT_ID_LENGTH_INVOICE_NUMBER = 6
)
