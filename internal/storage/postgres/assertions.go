package postgres

import "github.com/tinoosan/loanledger/internal/storage"

// Compile-time interface assertion.
var _ storage.Store = (*Store)(nil)
