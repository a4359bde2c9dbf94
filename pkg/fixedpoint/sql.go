package fixedpoint

import (
	"database/sql/driver"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// Value stores the raw scaled integer as a decimal string.
func (a Amount) Value() (driver.Value, error) {
	return a.big().String(), nil
}

// GormDataType names the virtual type used in struct tags and migrations.
func (Amount) GormDataType() string {
	return "amount"
}

// GormDBDataType picks the column type per dialect. Postgres gets a
// NUMERIC wide enough for any 256-bit value. SQLite stores the raw
// integer as TEXT: its NUMERIC affinity would coerce values beyond
// int64 range to REAL and lose precision.
func (Amount) GormDBDataType(db *gorm.DB, _ *schema.Field) string {
	switch db.Dialector.Name() {
	case "postgres":
		return "numeric(78,0)"
	default:
		return "text"
	}
}

// Scan loads an Amount from its database representation.
func (a *Amount) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		a.n = nil
		return nil
	case int64:
		if v < 0 {
			return fmt.Errorf("fixedpoint: scan negative value %d", v)
		}
		a.n = big.NewInt(v)
		return nil
	case []byte:
		return a.scanString(string(v))
	case string:
		return a.scanString(v)
	default:
		return fmt.Errorf("fixedpoint: cannot scan %T", src)
	}
}

func (a *Amount) scanString(s string) error {
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return fmt.Errorf("fixedpoint: cannot scan %q", s)
	}
	if n.Sign() < 0 {
		return fmt.Errorf("fixedpoint: cannot scan negative value %q", s)
	}
	a.n = n
	return nil
}

// MarshalJSON renders the Amount as a decimal string.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(`"` + a.Decimal().String() + `"`), nil
}

// UnmarshalJSON accepts a decimal string or bare number.
func (a *Amount) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return err
	}
	parsed, err := FromDecimal(d)
	if err != nil {
		return err
	}
	a.n = parsed.big()
	return nil
}
