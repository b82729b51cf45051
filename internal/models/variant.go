package models

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Fixed variant columns used by sites with a known option-table layout.
const (
	VariantFlavor   = "flavor"
	VariantSKU      = "sku"
	VariantPrice    = "price"
	VariantQuantity = "quantity"
)

type Column struct {
	Key   string
	Value *string
}

// Variant is one row of a product's size/flavor table. Columns keep the
// order they were read in.
type Variant struct {
	Columns []Column
}

func NewFixedVariant(flavor, sku, price, quantity *string) Variant {
	return Variant{Columns: []Column{
		{Key: VariantFlavor, Value: flavor},
		{Key: VariantSKU, Value: sku},
		{Key: VariantPrice, Value: price},
		{Key: VariantQuantity, Value: quantity},
	}}
}

func (v Variant) Get(key string) (*string, bool) {
	for _, c := range v.Columns {
		if c.Key == key {
			return c.Value, true
		}
	}
	return nil, false
}

func (v *Variant) Set(key string, value *string) {
	for i, c := range v.Columns {
		if c.Key == key {
			v.Columns[i].Value = value
			return
		}
	}
	v.Columns = append(v.Columns, Column{Key: key, Value: value})
}

func (v Variant) Keys() []string {
	keys := make([]string, len(v.Columns))
	for i, c := range v.Columns {
		keys[i] = c.Key
	}
	return keys
}

func (v Variant) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, c := range v.Columns {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := marshalValue(c.Key)
		if err != nil {
			return nil, err
		}
		val, err := marshalValue(c.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (v *Variant) UnmarshalJSON(data []byte) error {
	keys, values, err := decodeObject(data)
	if err != nil {
		return err
	}

	v.Columns = make([]Column, 0, len(keys))
	for _, k := range keys {
		raw := bytes.TrimSpace(values[k])
		col := Column{Key: k}
		switch {
		case bytes.Equal(raw, []byte("null")):
		case len(raw) > 0 && raw[0] == '"':
			var s string
			if err := json.Unmarshal(raw, &s); err != nil {
				return fmt.Errorf("variant column %q: %w", k, err)
			}
			col.Value = &s
		default:
			s := string(raw)
			col.Value = &s
		}
		v.Columns = append(v.Columns, col)
	}
	return nil
}
