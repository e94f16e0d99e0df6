package auth

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// sessionClaims is the token payload. iat and exp are NumericDates with
// millisecond precision, written as fractional seconds.
type sessionClaims struct {
	Subject   string      `json:"sub,omitempty"`
	IssuedAt  *millisDate `json:"iat,omitempty"`
	ExpiresAt *millisDate `json:"exp,omitempty"`
}

var _ jwt.Claims = (*sessionClaims)(nil)

func (c *sessionClaims) GetExpirationTime() (*jwt.NumericDate, error) {
	return c.ExpiresAt.numericDate(), nil
}

func (c *sessionClaims) GetIssuedAt() (*jwt.NumericDate, error) {
	return c.IssuedAt.numericDate(), nil
}

func (c *sessionClaims) GetNotBefore() (*jwt.NumericDate, error) { return nil, nil }
func (c *sessionClaims) GetIssuer() (string, error)              { return "", nil }
func (c *sessionClaims) GetSubject() (string, error)             { return c.Subject, nil }
func (c *sessionClaims) GetAudience() (jwt.ClaimStrings, error)  { return nil, nil }

// millisDate is a point in time counted in milliseconds since the epoch.
// jwt.NumericDate rounds to jwt.TimePrecision on both encode and decode,
// so the claims carry their own type.
type millisDate struct {
	ms int64
}

func newMillisDate(t time.Time) *millisDate {
	return &millisDate{ms: t.UnixMilli()}
}

func toMillis(t time.Time) time.Time {
	return time.UnixMilli(t.UnixMilli())
}

// Time returns the date as a time.Time
func (d *millisDate) Time() time.Time {
	return time.UnixMilli(d.ms)
}

// numericDate converts without truncation; nil stays nil
func (d *millisDate) numericDate() *jwt.NumericDate {
	if d == nil {
		return nil
	}
	return &jwt.NumericDate{Time: d.Time()}
}

// MarshalJSON writes whole seconds as an integer and anything else as a
// decimal with at most three fractional digits.
func (d millisDate) MarshalJSON() ([]byte, error) {
	ms, sign := d.ms, ""
	if ms < 0 {
		ms, sign = -ms, "-"
	}
	sec, frac := ms/1000, ms%1000
	if frac == 0 {
		return []byte(sign + strconv.FormatInt(sec, 10)), nil
	}
	digits := strings.TrimRight(fmt.Sprintf("%03d", frac), "0")
	return []byte(sign + strconv.FormatInt(sec, 10) + "." + digits), nil
}

// UnmarshalJSON reads a NumericDate. Plain decimals are parsed exactly;
// exponent forms go through float64 and are rounded to the millisecond.
func (d *millisDate) UnmarshalJSON(b []byte) error {
	s := string(bytes.TrimSpace(b))
	if ms, ok := parseDecimalMillis(s); ok {
		d.ms = ms
		return nil
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("could not parse NumericDate %q: %w", s, err)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return fmt.Errorf("invalid NumericDate %q", s)
	}
	d.ms = int64(math.Round(f * 1000))
	return nil
}

// parseDecimalMillis parses "[-]digits[.digits]" into milliseconds,
// dropping digits past the third fractional place.
func parseDecimalMillis(s string) (int64, bool) {
	intPart, fracPart, hasFrac := strings.Cut(s, ".")
	if intPart == "" || intPart == "-" || strings.ContainsAny(intPart[1:], "+-") {
		return 0, false
	}
	if hasFrac && (fracPart == "" || strings.Trim(fracPart, "0123456789") != "") {
		return 0, false
	}

	sec, err := strconv.ParseInt(intPart, 10, 64)
	if err != nil {
		return 0, false
	}
	if len(fracPart) > 3 {
		fracPart = fracPart[:3]
	}
	for len(fracPart) < 3 {
		fracPart += "0"
	}
	frac, err := strconv.ParseInt(fracPart, 10, 64)
	if err != nil {
		return 0, false
	}

	if strings.HasPrefix(intPart, "-") {
		return sec*1000 - frac, true
	}
	return sec*1000 + frac, true
}
