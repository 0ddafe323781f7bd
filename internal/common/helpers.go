package common

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
)

const (
	EtherDecimals = 18 // 1 ether = 10^18 wei
	HexPrefix     = "0x"
)

var (
	errEmptyAmount   = errors.New("empty amount")
	errInvalidAmount = errors.New("invalid decimal format")
)

// EtherToWei converts an ether decimal string to wei without float precision loss.
// Example: EtherToWei("0.5") = 500000000000000000
func EtherToWei(ether string) (*big.Int, error) {
	return parseWithDecimals(ether, EtherDecimals)
}

// WeiToEther converts wei to an ether decimal string without float precision loss.
// Example: WeiToEther(1500000000000000000) = "1.5"
func WeiToEther(wei *big.Int) string {
	return formatWithDecimals(wei, EtherDecimals)
}

// WeiStringToEther is WeiToEther for wei values kept as decimal strings.
func WeiStringToEther(wei string) (string, error) {
	n, ok := new(big.Int).SetString(wei, 10)
	if !ok {
		return "", fmt.Errorf("invalid wei value %q", wei)
	}
	return WeiToEther(n), nil
}

// formatWithDecimals converts an integer to a decimal string by inserting the
// decimal point and trimming trailing fractional zeros.
// Example: formatWithDecimals(24981836, 9) = "0.024981836"
func formatWithDecimals(value *big.Int, decimals int) string {
	if value == nil {
		return "0"
	}
	neg := value.Sign() < 0
	s := new(big.Int).Abs(value).String()

	// Pad with leading zeros if needed
	if len(s) <= decimals {
		s = strings.Repeat("0", decimals-len(s)+1) + s
	}

	pos := len(s) - decimals
	whole, frac := s[:pos], strings.TrimRight(s[pos:], "0")
	out := whole
	if frac != "" {
		out += "." + frac
	}
	if neg {
		out = "-" + out
	}
	return out
}

// parseWithDecimals converts a non-negative decimal string to an integer by
// removing the decimal point. More fractional digits than decimals is an error.
// Example: parseWithDecimals("0.024981836", 9) = 24981836
func parseWithDecimals(s string, decimals int) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, errEmptyAmount
	}

	whole, frac, hasPoint := strings.Cut(s, ".")
	if hasPoint && strings.Contains(frac, ".") {
		return nil, errInvalidAmount
	}
	if whole == "" {
		whole = "0"
	}
	if hasPoint && frac == "" {
		return nil, errInvalidAmount
	}
	if !isDigits(whole) || !isDigits(frac) {
		return nil, errInvalidAmount
	}
	if len(frac) > decimals {
		return nil, fmt.Errorf("too many fractional digits: max %d", decimals)
	}

	// Pad fractional part to exact decimals and combine
	frac += strings.Repeat("0", decimals-len(frac))
	n, ok := new(big.Int).SetString(whole+frac, 10)
	if !ok {
		return nil, errInvalidAmount
	}
	return n, nil
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// StripHexPrefix removes a leading 0x as addresses and hashes are stored without it.
func StripHexPrefix(s string) string {
	if len(s) >= 2 && (s[:2] == "0x" || s[:2] == "0X") {
		return s[2:]
	}
	return s
}

// AddHexPrefix re-adds the 0x prefix on output.
func AddHexPrefix(s string) string {
	if s == "" {
		return s
	}
	return HexPrefix + StripHexPrefix(s)
}
