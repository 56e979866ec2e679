package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/matchwatch/pipeline/internal/config"
	"github.com/matchwatch/pipeline/internal/domain/league"
	"github.com/matchwatch/pipeline/internal/platform/cache"
	"github.com/matchwatch/pipeline/internal/platform/logging"
)

// Scope reasons surfaced on decisions and coverage rows.
const (
	scopeReasonBaseline         = "baseline"
	scopeReasonOverrideEnabled  = "override_enabled"
	scopeReasonOverrideDisabled = "override_disabled"
	scopeReasonUnknownType      = "unknown_type_fail_open"
)

// ScopeDecision is one (endpoint, league, season) admission with the rule
// that produced it.
type ScopeDecision struct {
	InScope bool   `json:"in_scope"`
	Reason  string `json:"reason"`
}

// ScopeService decides which endpoints run for which tracked pairs.
// Precedence: baseline endpoints always run, explicit overrides beat type
// defaults, and leagues with an unknown competition type fail open.
type ScopeService struct {
	policy     config.ScopePolicyConfig
	leagueRepo league.Repository
	baseline   map[string]bool
	types      *cache.Store
	logger     *logging.Logger
}

func NewScopeService(policy config.ScopePolicyConfig, leagueRepo league.Repository, logger *logging.Logger) *ScopeService {
	if logger == nil {
		logger = logging.Default()
	}
	baseline := make(map[string]bool, len(policy.BaselineEndpoints))
	for _, endpoint := range policy.BaselineEndpoints {
		baseline[config.NormalizeEndpoint(endpoint)] = true
	}
	return &ScopeService{
		policy:     policy,
		leagueRepo: leagueRepo,
		baseline:   baseline,
		types:      cache.NewStore(10 * time.Minute),
		logger:     logger,
	}
}

func (s *ScopeService) Decide(ctx context.Context, endpoint string, leagueID int64, season int) (ScopeDecision, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.ScopeService.Decide")
	defer span.End()

	endpoint = config.NormalizeEndpoint(endpoint)
	if endpoint == "" {
		return ScopeDecision{}, fmt.Errorf("%w: endpoint is required", ErrInvalidInput)
	}

	if s.baseline[endpoint] {
		return ScopeDecision{InScope: true, Reason: scopeReasonBaseline}, nil
	}

	for _, override := range s.policy.Overrides {
		if override.League != leagueID || override.Season != season {
			continue
		}
		if config.NormalizeEndpoint(override.Endpoint) != endpoint {
			continue
		}
		if override.Enabled {
			return ScopeDecision{InScope: true, Reason: scopeReasonOverrideEnabled}, nil
		}
		return ScopeDecision{InScope: false, Reason: scopeReasonOverrideDisabled}, nil
	}

	leagueType, err := s.leagueType(ctx, leagueID)
	if err != nil {
		return ScopeDecision{}, err
	}
	if !league.IsKnownType(leagueType) {
		return ScopeDecision{InScope: true, Reason: scopeReasonUnknownType}, nil
	}

	for _, disabled := range s.policy.TypeDefaults[leagueType].Disabled {
		if config.NormalizeEndpoint(disabled) == endpoint {
			return ScopeDecision{InScope: false, Reason: fmt.Sprintf("type_%s_disabled", leagueType)}, nil
		}
	}
	return ScopeDecision{InScope: true, Reason: fmt.Sprintf("type_%s_default", leagueType)}, nil
}

// leagueType resolves the stored competition type through a short TTL cache;
// an absent league reads as unknown rather than an error.
func (s *ScopeService) leagueType(ctx context.Context, leagueID int64) (string, error) {
	key := fmt.Sprintf("league-type/%d", leagueID)
	value, err := s.types.GetOrLoad(ctx, key, func(ctx context.Context) (any, error) {
		stored, found, err := s.leagueRepo.GetByID(ctx, leagueID)
		if err != nil {
			return nil, fmt.Errorf("load league %d for scope decision: %w", leagueID, err)
		}
		if !found {
			return "", nil
		}
		return league.NormalizeType(stored.Type), nil
	})
	if err != nil {
		return "", err
	}
	typed, _ := value.(string)
	return typed, nil
}
