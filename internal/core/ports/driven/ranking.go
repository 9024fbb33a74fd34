package driven

import "github.com/jltournay/farmer-power-knowledge/internal/core/domain"

// RankingConfigProvider supplies the current ranking configuration.
// Implementations may reload it at runtime; callers read it per request.
type RankingConfigProvider interface {
	RankingConfig() domain.RankingConfig
}
