package app

import (
	"fmt"

	"github.com/yungbote/txcore/internal/data/repos"
	"github.com/yungbote/txcore/internal/platform/logger"
)

func wireRepos(log *logger.Logger) (*repos.Ledger, error) {
	log.Info("Wiring repos...")
	l, err := repos.NewLedger()
	if err != nil {
		return nil, fmt.Errorf("init ledger repos: %w", err)
	}
	return l, nil
}
