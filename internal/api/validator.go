package api

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/cockroachdb/errors"
	js "github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.json
var schemaFS embed.FS

const (
	SupplierSchema      = "supplier"
	InvoiceSchema       = "invoice"
	PurchaseOrderSchema = "purchase_order"
	PaymentSchema       = "payment"
)

// Validator validates request bodies against the embedded JSON schemas.
type Validator struct {
	schemas map[string]*js.Schema
}

// NewValidator compiles every embedded schema.
func NewValidator() (*Validator, error) {
	entries, err := schemaFS.ReadDir("schemas")
	if err != nil {
		return nil, errors.Wrap(err, "error listing schemas")
	}
	compiler := js.NewCompiler()
	compiler.AssertFormat = true
	var names []string
	for _, entry := range entries {
		buf, err := schemaFS.ReadFile(path.Join("schemas", entry.Name()))
		if err != nil {
			return nil, errors.Wrapf(err, "error reading schema: %s", entry.Name())
		}
		if err := compiler.AddResource("file:///"+entry.Name(), bytes.NewReader(buf)); err != nil {
			return nil, errors.Wrapf(err, "error adding schema: %s", entry.Name())
		}
		names = append(names, entry.Name())
	}
	v := &Validator{schemas: make(map[string]*js.Schema)}
	for _, fn := range names {
		schema, err := compiler.Compile("file:///" + fn)
		if err != nil {
			return nil, errors.Wrapf(err, "error compiling schema: %s", fn)
		}
		v.schemas[strings.TrimSuffix(fn, ".json")] = schema
	}
	return v, nil
}

// ValidationError is a request body that did not match its schema.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func leaf(ve *js.ValidationError) *js.ValidationError {
	for len(ve.Causes) > 0 {
		ve = ve.Causes[0]
	}
	return ve
}

// Decode reads a JSON body, validates it against the named schema and decodes it into v.
func (v *Validator) Decode(name string, r io.Reader, out any) error {
	schema, ok := v.schemas[name]
	if !ok {
		return errors.Newf("unknown schema: %s", name)
	}
	buf, err := io.ReadAll(r)
	if err != nil {
		return errors.Wrap(err, "error reading body")
	}
	var doc any
	if err := json.Unmarshal(buf, &doc); err != nil {
		return &ValidationError{Message: "invalid json: " + err.Error()}
	}
	if err := schema.Validate(doc); err != nil {
		var ve *js.ValidationError
		if errors.As(err, &ve) {
			l := leaf(ve)
			return &ValidationError{Field: strings.TrimPrefix(l.InstanceLocation, "/"), Message: l.Message}
		}
		return err
	}
	if err := json.Unmarshal(buf, out); err != nil {
		return &ValidationError{Message: "invalid json: " + err.Error()}
	}
	return nil
}
