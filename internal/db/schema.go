package db

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
)

// DefaultVectorField is the hash field holding the FLOAT32 vector blob.
const DefaultVectorField = "__vector"

// VectorIndex is an FT index over the hashes under one key prefix:
// a set of TAG fields and exactly one HNSW cosine vector field.
type VectorIndex struct {
	Name   string
	Prefix string
	Tags   []string
	Vector VectorField
}

// VectorField describes the HNSW vector of a VectorIndex.
type VectorField struct {
	Name           string // defaults to DefaultVectorField
	Dimensions     int
	M              int // max edges per node; 0 keeps the server default
	EFConstruction int // build-time candidate list size; 0 keeps the server default
}

// Validate checks that the index can be created.
func (idx *VectorIndex) Validate() error {
	if idx.Name == "" {
		return errors.New("index name is required")
	}
	if !IsValidIdentifier(idx.Name) {
		return fmt.Errorf("index name %q contains invalid characters", idx.Name)
	}
	if idx.Prefix == "" {
		return errors.New("index prefix is required")
	}
	if idx.Vector.Dimensions <= 0 {
		return fmt.Errorf("vector dimensions must be positive, got %d", idx.Vector.Dimensions)
	}
	if idx.Vector.M < 0 || idx.Vector.EFConstruction < 0 {
		return errors.New("hnsw parameters must not be negative")
	}

	seen := map[string]struct{}{idx.vectorName(): {}}
	for _, tag := range idx.Tags {
		if tag == "" {
			return errors.New("tag field name is required")
		}
		if _, dup := seen[tag]; dup {
			return fmt.Errorf("duplicate field name: %s", tag)
		}
		seen[tag] = struct{}{}
	}
	return nil
}

func (idx *VectorIndex) vectorName() string {
	if idx.Vector.Name == "" {
		return DefaultVectorField
	}
	return idx.Vector.Name
}

// CreateArgs renders the FT.CREATE arguments following the command name.
func (idx *VectorIndex) CreateArgs() []string {
	args := []string{idx.Name, "ON", "HASH", "PREFIX", "1", idx.Prefix, "SCHEMA"}
	for _, tag := range idx.Tags {
		args = append(args, tag, "TAG")
	}

	attrs := []string{
		"TYPE", "FLOAT32",
		"DIM", strconv.Itoa(idx.Vector.Dimensions),
		"DISTANCE_METRIC", "COSINE",
	}
	if idx.Vector.M > 0 {
		attrs = append(attrs, "M", strconv.Itoa(idx.Vector.M))
	}
	if idx.Vector.EFConstruction > 0 {
		attrs = append(attrs, "EF_CONSTRUCTION", strconv.Itoa(idx.Vector.EFConstruction))
	}

	args = append(args, idx.vectorName(), "VECTOR", "HNSW", strconv.Itoa(len(attrs)))
	return slices.Concat(args, attrs)
}

// IsValidIdentifier reports whether s matches [a-zA-Z0-9_.:-]+.
func IsValidIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		isAlpha := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
		isDigit := r >= '0' && r <= '9'
		isSpecial := r == '_' || r == ':' || r == '-' || r == '.'
		if !isAlpha && !isDigit && !isSpecial {
			return false
		}
	}
	return true
}
