// Package loader reads the monitor input file into a MonitorData value.
package loader

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"

	"github.com/pingsantohq/monitord/internal/verify"
	"github.com/pingsantohq/monitord/pkg/types"
)

var ErrSignatureMissing = errors.New("monitor file signature missing")

// Options controls signature checking. With an empty PublicKey no signature
// is read.
type Options struct {
	PublicKey        string
	RequireSignature bool
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load reads, verifies and validates the monitor file at path.
func Load(ctx context.Context, path string, opts Options) (types.MonitorData, error) {
	var data types.MonitorData

	payload, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return data, fmt.Errorf("read monitor file %q: %w", path, err)
	}

	if err := checkSignature(ctx, path, payload, opts); err != nil {
		return data, err
	}

	data, err = Decode(payload)
	if err != nil {
		return types.MonitorData{}, fmt.Errorf("monitor file %q: %w", path, err)
	}
	return data, nil
}

// document mirrors types.MonitorData with presence tracked for the mandatory
// fields: name and code must appear, but may be empty strings.
type document struct {
	Monitors []entry `json:"monitors" validate:"required,dive"`
}

type entry struct {
	Name      *string       `json:"name" validate:"required"`
	MonitorID *uint32       `json:"monitor_id"`
	Script    *string       `json:"script"`
	Result    *types.Result `json:"result"`
	Code      *string       `json:"code" validate:"required"`
	Type      *string       `json:"type"`
}

// Decode parses and validates a monitor document. Unknown fields are ignored;
// a missing monitors array or a monitor without name or code is an error.
func Decode(payload []byte) (types.MonitorData, error) {
	var doc document
	dec := json.NewDecoder(bytes.NewReader(payload))
	if err := dec.Decode(&doc); err != nil {
		return types.MonitorData{}, fmt.Errorf("parse monitors: %w", err)
	}
	if dec.More() {
		return types.MonitorData{}, errors.New("parse monitors: trailing data after document")
	}
	if err := validate.Struct(&doc); err != nil {
		return types.MonitorData{}, fmt.Errorf("validate monitors: %w", err)
	}

	data := types.MonitorData{Monitors: make([]types.Monitor, len(doc.Monitors))}
	for i, e := range doc.Monitors {
		data.Monitors[i] = types.Monitor{
			Name:      *e.Name,
			MonitorID: e.MonitorID,
			Script:    e.Script,
			Result:    e.Result,
			Code:      *e.Code,
			Type:      e.Type,
		}
	}
	return data, nil
}

func checkSignature(ctx context.Context, path string, payload []byte, opts Options) error {
	if opts.PublicKey == "" {
		return nil
	}

	sigPath := path + verify.SignatureSuffix
	signature, err := os.ReadFile(filepath.Clean(sigPath))
	if errors.Is(err, fs.ErrNotExist) {
		if opts.RequireSignature {
			return fmt.Errorf("%w: %q", ErrSignatureMissing, sigPath)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("read signature %q: %w", sigPath, err)
	}

	verifier, err := verify.NewMinisignVerifier(opts.PublicKey)
	if err != nil {
		return err
	}
	if err := verifier.Verify(ctx, payload, signature); err != nil {
		return fmt.Errorf("verify monitor file %q: %w", path, err)
	}
	return nil
}
