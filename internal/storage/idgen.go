package storage

import "github.com/google/uuid"

func newRowID() string { return uuid.NewString() }
