package structures

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/holiman/uint256"
)

// Quantity is an unsigned integer that upstream services may encode either as a
// JSON number, a decimal string or a 0x-prefixed hex string. null and "" decode to 0.
type Quantity uint64

func (q *Quantity) UnmarshalJSON(data []byte) error {

	raw := string(bytes.TrimSpace(data))

	if raw == "null" || raw == `""` {
		*q = 0
		return nil
	}

	raw = strings.Trim(raw, `"`)

	parsed, err := ParseUint64(raw)
	if err != nil {
		return fmt.Errorf("quantity %q: %w", raw, err)
	}

	*q = Quantity(parsed)
	return nil
}

func (q Quantity) MarshalJSON() ([]byte, error) {
	return []byte(strconv.FormatUint(uint64(q), 10)), nil
}

func (q Quantity) Uint64() uint64 { return uint64(q) }

// ParseUint64 accepts decimal or 0x-prefixed hex.
func ParseUint64(raw string) (uint64, error) {

	raw = strings.TrimSpace(raw)

	if raw == "" || raw == "0x" || raw == "0X" {
		return 0, nil
	}

	return strconv.ParseUint(raw, 0, 64)
}

// BigQuantity is the 256-bit counterpart of Quantity, used for values that can
// exceed uint64 (transaction value in wei, fees).
type BigQuantity struct {
	uint256.Int
}

func (q *BigQuantity) UnmarshalJSON(data []byte) error {

	raw := string(bytes.TrimSpace(data))

	if raw == "null" || raw == `""` {
		q.Clear()
		return nil
	}

	raw = strings.Trim(raw, `"`)

	parsed, err := ParseUint256(raw)
	if err != nil {
		return fmt.Errorf("big quantity %q: %w", raw, err)
	}

	q.Set(parsed)
	return nil
}

func (q BigQuantity) MarshalJSON() ([]byte, error) {
	return json.Marshal(q.Dec())
}

// ParseUint256 accepts decimal or 0x-prefixed hex, tolerating leading zeros in hex.
func ParseUint256(raw string) (*uint256.Int, error) {

	raw = strings.TrimSpace(raw)

	if raw == "" {
		return new(uint256.Int), nil
	}

	if strings.HasPrefix(raw, "0x") || strings.HasPrefix(raw, "0X") {

		digits := strings.TrimLeft(raw[2:], "0")

		if digits == "" {
			return new(uint256.Int), nil
		}

		return uint256.FromHex("0x" + digits)
	}

	return uint256.FromDecimal(raw)
}
