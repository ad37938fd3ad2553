package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"strings"
)

var (
	ErrQuantityMissing    = errors.New("quantity is required")
	ErrQuantityNotInteger = errors.New("quantity must be an integer")
)

// Quantity keeps the raw JSON value sent for a quantity so the service can
// coerce it explicitly. Numbers, floats (truncated) and numeric strings are
// accepted.
type Quantity []byte

func QuantityOf(n int) *Quantity {
	q := Quantity(strconv.Itoa(n))
	return &q
}

func (q *Quantity) UnmarshalJSON(b []byte) error {
	*q = append((*q)[:0], b...)
	return nil
}

func (q Quantity) MarshalJSON() ([]byte, error) {
	if len(q) == 0 {
		return []byte("null"), nil
	}
	return q, nil
}

func (q Quantity) Int() (int, error) {
	raw := bytes.TrimSpace(q)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, ErrQuantityMissing
	}

	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, ErrQuantityNotInteger
		}
		n, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil {
			return 0, ErrQuantityNotInteger
		}
		return n, nil
	case 't', 'f', '{', '[':
		return 0, ErrQuantityNotInteger
	}

	num := json.Number(raw)
	if n, err := num.Int64(); err == nil {
		if int64(int(n)) != n {
			return 0, ErrQuantityNotInteger
		}
		return int(n), nil
	}

	f, err := num.Float64()
	if err != nil {
		return 0, ErrQuantityNotInteger
	}
	t := math.Trunc(f)
	if t < math.MinInt || t >= math.MaxInt {
		return 0, ErrQuantityNotInteger
	}
	return int(t), nil
}
