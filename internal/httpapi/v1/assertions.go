package v1

import (
	"github.com/tinoosan/loanledger/internal/scheduler"
	"github.com/tinoosan/loanledger/internal/storage/memory"
)

var (
	_ ReadyChecker = (*memory.Store)(nil)
	_ Runner       = (*scheduler.Scheduler)(nil)
)
