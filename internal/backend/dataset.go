package backend

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/angelmondragon/fieldsync/pkg/db/models"
)

// Rep is a sales representative allowed to log in. Fixtures may carry a
// plaintext Password instead of a hash; NewService hashes it on load.
type Rep struct {
	ID           string `json:"id" validate:"required"`
	Code         string `json:"code" validate:"required"`
	Name         string `json:"name"`
	PasswordHash string `json:"password_hash,omitempty"`
	Password     string `json:"password,omitempty"`
}

// Dataset is the reference data the backend serves.
type Dataset struct {
	Reps          []Rep                 `json:"reps" validate:"dive"`
	Clients       []models.Client       `json:"clients" validate:"dive"`
	Products      []models.Product      `json:"products" validate:"dive"`
	PaymentTables []models.PaymentTable `json:"payment_tables" validate:"dive"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		tag := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if tag == "" {
			return f.Name
		}
		return tag
	})
	return v
}

// LoadDataset reads a JSON fixture from disk.
func LoadDataset(path string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()
	return DecodeDataset(f)
}

// DecodeDataset parses and validates a fixture.
func DecodeDataset(r io.Reader) (*Dataset, error) {
	var ds Dataset
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&ds); err != nil {
		return nil, fmt.Errorf("decode dataset: %w", err)
	}
	if err := validate.Struct(&ds); err != nil {
		return nil, fmt.Errorf("validate dataset: %w", err)
	}
	seen := map[string]struct{}{}
	for _, rep := range ds.Reps {
		if _, dup := seen[rep.Code]; dup {
			return nil, fmt.Errorf("validate dataset: duplicate rep code %q", rep.Code)
		}
		seen[rep.Code] = struct{}{}
		if rep.PasswordHash == "" && rep.Password == "" {
			return nil, fmt.Errorf("validate dataset: rep %q has no password", rep.Code)
		}
	}
	for i, p := range ds.Products {
		if err := p.Check(); err != nil {
			return nil, fmt.Errorf("validate dataset: product %d: %w", i, err)
		}
	}
	return &ds, nil
}
