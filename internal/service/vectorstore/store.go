package vectorstore

import (
	"context"
	"errors"

	"github.com/zhouzirui/docchat/backend/internal/model/document"
)

var (
	ErrCollectionNotFound = errors.New("collection not found")
	ErrDimensionMismatch  = errors.New("vector dimension mismatch")
)

// Row is one passage ready for insertion. ID is generated when empty.
type Row struct {
	ID         string
	Text       string
	SourcePath string
	Vector     []float32
}

// Store is a cosine-similarity vector store organised in named collections.
type Store interface {
	CreateCollection(ctx context.Context, name string, dim int) error
	DropCollection(ctx context.Context, name string) error
	HasCollection(name string) bool
	// Insert adds the batch atomically and returns the number of rows inserted.
	Insert(ctx context.Context, name string, rows []Row) (int, error)
	// Search returns up to k hits ordered by descending similarity. fields
	// limits which passage fields are populated.
	Search(ctx context.Context, name string, vector []float32, k int, fields []string) ([]document.Hit, error)
	Count(name string) int
}
